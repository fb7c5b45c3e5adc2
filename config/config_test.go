package config

import "testing"

func TestLogFileNamesAreDataDirRelative(t *testing.T) {
	cfg := &Config{DataDir: "/var/pandanite"}
	logFile, errFile := cfg.LogFileNames()

	if logFile != "/var/pandanite/logs/pandanite-node.log" {
		t.Errorf("LogFileNames: got log file %q", logFile)
	}
	if errFile != "/var/pandanite/logs/pandanite-node_err.log" {
		t.Errorf("LogFileNames: got err log file %q", errFile)
	}
}
