package config

type config struct {
	// Lower bound (inclusive) of the randomized election timeout in ticks
	ElectionTimeoutMinTicks uint8
	// Upper bound (exclusive) of the randomized election timeout in ticks
	ElectionTimeoutMaxTicks uint8
	// Ticks between leader replication broadcasts
	HeartbeatIntervalTicks uint8
	// Real-time duration of a single tick in milliseconds (playground only,
	// nodes themselves never read the wall clock)
	TickIntervalMilliseconds int
	// Maximum number of log entries included in a single append
	MaxEntriesPerAppend int
	// Array of raft node ids
	NodeIds []uint8
	// Listen address of the HTTP status API, empty to disable
	HttpApiAddress string
}

var Config = config{
	ElectionTimeoutMinTicks:  10,
	ElectionTimeoutMaxTicks:  20,
	HeartbeatIntervalTicks:   3,
	TickIntervalMilliseconds: 100,
	MaxEntriesPerAppend:      8,
}
