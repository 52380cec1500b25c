package ledger

// ReadyForSubmission is the guard for the one-time DMV submission. Once
// DMVSubmittedAt is set it stays false forever for that record.
func ReadyForSubmission(f Facts) bool {
	return f.Exists &&
		f.ExamPassed &&
		f.CompletedAt != nil &&
		f.PaidAt != nil &&
		f.DMVSubmittedAt == nil
}
