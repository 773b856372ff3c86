package ledger

// algod v2 and indexer v2 REST paths.
const (
	statusPath         = "/v2/status"
	paramsPath         = "/v2/transactions/params"
	submitPath         = "/v2/transactions"
	pendingPathFmt     = "/v2/transactions/pending/%s"
	accountPathFmt     = "/v2/accounts/%s"
	compilePath        = "/v2/teal/compile"
	indexerSearchPath  = "/v2/transactions"
	indexerHealthPath  = "/health"
	algodTokenHeader   = "X-Algo-API-Token"
	indexerTokenHeader = "X-Indexer-API-Token"
)
