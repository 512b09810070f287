package jobs

// Plan cuts a source of duration total (seconds) into segments of length
// seconds. The last segment is clamped to total, and a source shorter than
// one segment still yields a single shortened segment. total and length must
// be positive; the inspector rejects empty sources before planning.
func Plan(total, length int) SegmentPlan {
	if total <= 0 || length <= 0 {
		return nil
	}
	n := total / length
	if total%length != 0 {
		n++
	}
	plan := make(SegmentPlan, 0, n)
	for i := 0; i < n; i++ {
		start := i * length
		end := start + length
		if end > total {
			end = total
		}
		plan = append(plan, SegmentSpec{Index: i, Start: start, End: end})
	}
	return plan
}
