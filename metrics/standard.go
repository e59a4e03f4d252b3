package metrics

// Pre-defined metrics for the execution engine. All metrics live in
// DefaultRegistry so they are globally accessible without passing a
// registry around, and are exported over HTTP by PrometheusExporter.

var (
	// EVMExecutions counts top-level executive.Execute invocations.
	EVMExecutions = DefaultRegistry.Counter("evm.executions")
	// EVMGasUsed counts total gas consumed across executed transactions.
	EVMGasUsed = DefaultRegistry.Counter("evm.gas_used")
	// EVMReverted counts transactions that finished in StatusReverted.
	EVMReverted = DefaultRegistry.Counter("evm.reverted")
	// EVMFailed counts transactions that finished in StatusFailed.
	EVMFailed = DefaultRegistry.Counter("evm.failed")
	// EVMExecutionTime records wall-clock execution time in milliseconds.
	EVMExecutionTime = DefaultRegistry.Histogram("evm.execution_ms")

	// TxThroughput tracks the rate of executive.Execute calls, the way
	// Meter tracks any other event stream.
	TxThroughput = NewMeter()
)
