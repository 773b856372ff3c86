package vote

const (
	AccountsTableName         = "accounts"
	VotersTableName           = "voters"
	ElectionsTableName        = "elections"
	CandidatesTableName       = "candidates"
	CandidateMembersTableName = "candidate_members"
	VotesTableName            = "votes"
	LedgerRecordsTableName    = "ledger_records"
)

// Tables lists every table in creation order; foreign keys point backwards.
var Tables = []string{
	AccountsTableName,
	VotersTableName,
	ElectionsTableName,
	CandidatesTableName,
	CandidateMembersTableName,
	VotesTableName,
	LedgerRecordsTableName,
}
