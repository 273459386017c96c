package textop

// Transform takes two operations made concurrently against the same
// document and returns a' and b' such that applying a then b' gives the
// same text as applying b then a'.
//
// a wins ties: when both insert at the same position, a's text ends up in
// front. The server sequencer passes the already sequenced op as a.
//
// An insert that lands strictly inside a concurrently deleted range is
// swallowed by the delete.
func Transform(a, b Op) (Op, Op) {
	if a.IsNoop() || b.IsNoop() {
		return a, b
	}
	switch {
	case a.Kind == Insert && b.Kind == Insert:
		if a.Pos <= b.Pos {
			b.Pos += a.Size()
		} else {
			a.Pos += b.Size()
		}
		return a, b
	case a.Kind == Insert && b.Kind == Delete:
		ins, del := insertDelete(a, b)
		return ins, del
	case a.Kind == Delete && b.Kind == Insert:
		ins, del := insertDelete(b, a)
		return del, ins
	default:
		return deleteAfter(a, b), deleteAfter(b, a)
	}
}

// insertDelete transforms a concurrent insert and delete against each
// other and returns them in that order.
func insertDelete(ins, del Op) (Op, Op) {
	n := ins.Size()
	switch {
	case ins.Pos <= del.Pos:
		del.Pos += n
	case ins.Pos >= del.Pos+del.Len:
		ins.Pos -= del.Len
	default:
		del.Len += n
		ins = Op{Kind: Noop}
	}
	return ins, del
}

// deleteAfter rewrites x so it applies after y has removed its range.
func deleteAfter(x, y Op) Op {
	xs, xe := x.Pos, x.Pos+x.Len
	ys, ye := y.Pos, y.Pos+y.Len
	switch {
	case xe <= ys:
		return x
	case xs >= ye:
		return Del(xs-y.Len, x.Len)
	}
	overlap := min(xe, ye) - max(xs, ys)
	return Del(min(xs, ys), x.Len-overlap)
}

// TransformAll transforms op against each of ops in order, as when op was
// made against a version the others have since moved past. The others win
// ties.
func TransformAll(op Op, ops []Op) Op {
	for _, prior := range ops {
		_, op = Transform(prior, op)
	}
	return op
}
