package ratings

// Incremental running-mean math for business ratings. Every function here is
// pure over an explicit (mean, count) pair; callers load the pair once, apply
// the update, and write the result back inside the same db transaction. The
// count is never re-queried mid-operation.

// Mean is a running average together with the number of samples behind it.
type Mean struct {
	Value float64
	Count int
}

// NotMentioned is the scorer's sentinel for a category absent from the review
// content. Such values contribute to neither the mean nor the count.
const NotMentioned = 0.0

// Add folds one new sample into m.
func Add(m Mean, value float64) Mean {
	if value == NotMentioned {
		return m
	}
	n := float64(m.Count)
	return Mean{
		Value: (m.Value*n + value) / (n + 1),
		Count: m.Count + 1,
	}
}

// Replace swaps an old sample for a new one without changing the count. When
// only one side is a real mention the operation degenerates to Add or Remove.
func Replace(m Mean, oldValue, newValue float64) Mean {
	switch {
	case oldValue == NotMentioned && newValue == NotMentioned:
		return m
	case oldValue == NotMentioned:
		return Add(m, newValue)
	case newValue == NotMentioned:
		return Remove(m, oldValue)
	}
	if m.Count <= 0 {
		return Mean{Value: newValue, Count: 1}
	}
	n := float64(m.Count)
	return Mean{
		Value: (m.Value*n - oldValue + newValue) / n,
		Count: m.Count,
	}
}

// Remove takes one sample back out of m. Removing the last sample resets the
// mean to zero rather than dividing by zero.
func Remove(m Mean, value float64) Mean {
	if value == NotMentioned || m.Count <= 0 {
		return m
	}
	if m.Count == 1 {
		return Mean{Value: 0, Count: 0}
	}
	n := float64(m.Count)
	return Mean{
		Value: (m.Value*n - value) / (n - 1),
		Count: m.Count - 1,
	}
}

// NeutralScore is the ceiling a business starts from before any signal exists.
const NeutralScore = 5.0

// ChargedScore converts charge history into a 0..5 trust signal: the more of
// its qualifying (settled) transactions a business charged, the lower the
// score. Below minSample the signal is considered undefined and stays neutral.
func ChargedScore(chargedCount, qualifyingCount, minSample int) float64 {
	if qualifyingCount < minSample || qualifyingCount <= 0 {
		return NeutralScore
	}
	rate := float64(chargedCount) / float64(qualifyingCount)
	return Clamp(NeutralScore-rate*NeutralScore, 0, NeutralScore)
}

// Blend combines the review signal and the charge signal into the overall
// score. Fallbacks, in order: no signal at all → neutral ceiling; only charge
// history → chargedScore; only reviews → reviewOverall.
func Blend(reviewOverall float64, hasReviews bool, chargedScore float64, hasCharges bool, reviewWeight, chargedWeight float64) float64 {
	switch {
	case !hasReviews && !hasCharges:
		return NeutralScore
	case !hasReviews:
		return chargedScore
	case !hasCharges:
		return reviewOverall
	}
	return Clamp(reviewOverall*reviewWeight+chargedScore*chargedWeight, 0, NeutralScore)
}

func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
