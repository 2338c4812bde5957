// Package logs reads the per-process log files written under logging.log_dir.
//
// Last returns the trailing lines of a file and the position of its end;
// ReadFrom and Follow resume from that position so `digitflow logs --follow`
// prints each line once, even across truncation by log cleanup.
package logs
