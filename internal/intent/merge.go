package intent

// Merge combines deterministic and probabilistic extraction results under
// the fixed precedence rules: the probabilistic value fills gaps the
// deterministic extractor left, and the deterministic value overrides on
// any conflict. Because the deterministic side canonicalizes locations
// against the known court list before merging, a known-court name always
// beats a probabilistic guess. Pure function; isolated so the precedence
// rules can be tested exhaustively.
func Merge(det, prob PartialIntent) PartialIntent {
	merged := PartialIntent{
		Players:  det.Players,
		Date:     det.Date,
		Time:     det.Time,
		Location: det.Location,
		// Only the probabilistic extractor produces conversational text.
		Confirmation: prob.Confirmation,
	}

	if len(merged.Players) == 0 {
		merged.Players = prob.Players
	}
	if merged.Date == "" {
		merged.Date = prob.Date
	}
	if merged.Time == "" {
		merged.Time = prob.Time
	}
	if merged.Location == "" {
		merged.Location = prob.Location
	}

	return merged
}

// fillGaps overlays earlier-conversation extraction under the current
// message's values: the newest message wins every conflict.
func fillGaps(primary, fallback PartialIntent) PartialIntent {
	if len(primary.Players) == 0 {
		primary.Players = fallback.Players
	}
	if primary.Date == "" {
		primary.Date = fallback.Date
	}
	if primary.Time == "" {
		primary.Time = fallback.Time
	}
	if primary.Location == "" {
		primary.Location = fallback.Location
	}
	return primary
}
