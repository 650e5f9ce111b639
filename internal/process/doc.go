// Package process supervises child processes.
//
// A Manager keeps one long-running helper alive (cec-client, driven
// through its stdin), restarting it with exponential backoff when it
// exits unexpectedly and stopping its whole process group on shutdown.
// Run executes a short one-shot command such as the host suspend.
//
// Example usage:
//
//	mgr := process.NewManager(process.Config{
//	    Name:             "cec-client",
//	    Binary:           "/usr/bin/cec-client",
//	    Args:             []string{"-d", "1"},
//	    Stdin:            true,
//	    RestartOnFailure: true,
//	})
//	if err := mgr.Start(ctx); err != nil {
//	    return err
//	}
//	defer mgr.Stop()
//
//	err := mgr.WriteLine("standby 0")
package process
