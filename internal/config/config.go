package config

import "time"

// Config holds all tunable broker parameters. Values come from flags in main;
// zero fields are filled in by Default.
type Config struct {
	ProducerAddr string // listener for producer connections
	ExecutorAddr string // listener for executor connections
	AdminAddr    string // ops HTTP listener

	AcquireTimeout      time.Duration // bound on waiting for an idle executor
	DispatchBackoff     time.Duration // delay between dispatch attempts
	MaxDispatchAttempts int           // attempts before a task is failed
	MaxLineBytes        int           // cap on a single wire line

	DBPath           string        // history journal
	HistoryRetention time.Duration // journal rows older than this are pruned
	HistoryPruneSpec string        // cron spec for journal pruning
	LedgerTTL        time.Duration // pending entries older than this are swept
	LedgerSweepSpec  string        // cron spec for ledger sweeping
}

func Default() Config {
	return Config{
		ProducerAddr:        ":8888",
		ExecutorAddr:        ":8889",
		AdminAddr:           ":8080",
		AcquireTimeout:      5 * time.Second,
		DispatchBackoff:     time.Second,
		MaxDispatchAttempts: 20,
		MaxLineBytes:        1 << 20,
		DBPath:              "taskbridge.db",
		HistoryRetention:    7 * 24 * time.Hour,
		HistoryPruneSpec:    "@every 1h",
		LedgerTTL:           15 * time.Minute,
		LedgerSweepSpec:     "@every 1m",
	}
}
