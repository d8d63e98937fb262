package decoder

import (
	"github.com/tetratelabs/treeir/api"
	"github.com/tetratelabs/treeir/internal/graph"
)

// decodeSwitch decodes `switch N { case; case; ... }` or its no-fallthrough
// variant (spec.md §4.2). A key that matches no case jumps straight past
// the switch (the IfDefault edge); in fallthrough mode a case that ends
// reachable carries its live control/effect into the next case's entry via
// a Merge, exactly the way an unlabeled `case` falls into the next one in
// a source-level switch. pc is the switch opcode's own offset, attached as
// any key or case failure's secondary token (spec.md §4.5).
func (d *Decoder) decodeSwitch(fallsThrough bool, pc uint32) error {
	n, _, err := d.readByte()
	if err != nil {
		return err
	}
	key, err := d.decodeExpression(api.PrimitiveI32)
	if err != nil {
		return wrapSecondary(err, pc)
	}
	sw := d.b.Switch(key)
	ctx := d.pushBlock(blockKindSwitch)
	preEffect := d.b.Effect

	d.branchToExit(ctx, d.b.IfDefault(sw), preEffect)

	var curControl, curEffect *graph.Node
	for i := 0; i < int(n); i++ {
		entry := d.b.IfValue(sw, uint32(i))
		if fallsThrough && curControl != nil {
			merge := d.b.Merge(entry, curControl)
			d.b.Control = merge
			d.b.Effect = d.b.EffectPhi(merge, preEffect, curEffect)
		} else {
			d.b.Control, d.b.Effect = entry, preEffect
		}
		d.unreachable = false

		if err := d.decodeStatement(); err != nil {
			d.popBlock()
			return wrapSecondary(err, pc)
		}

		if fallsThrough {
			if d.unreachable {
				curControl, curEffect = nil, nil
			} else {
				curControl, curEffect = d.b.Control, d.b.Effect
			}
			continue
		}
		if !d.unreachable {
			d.branchToExit(ctx, d.b.Control, d.b.Effect)
		}
		d.unreachable = false
	}
	if fallsThrough && curControl != nil {
		d.branchToExit(ctx, curControl, curEffect)
	}
	d.popBlock()

	if ctx.exitMerge != nil {
		d.b.Control, d.b.Effect = ctx.exitMerge, ctx.exitEffectPhi
		d.unreachable = false
	} else {
		d.unreachable = true
	}
	return nil
}
