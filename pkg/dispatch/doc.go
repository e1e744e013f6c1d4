// Package dispatch provides secure copy and command execution on a remote
// host over one authenticated SSH session.
//
// A Dispatcher is constructed against a single remote host; authentication
// happens during construction and a constructed dispatcher is always ready.
// Copy and Execute each run over their own channel of the shared session,
// so independent operations may run concurrently. Connect opens a
// long-lived file-management sub-session with mkdir/remove/rmdir and
// related primitives.
//
// # Basic Usage
//
//	d, err := dispatch.New(ctx, "build1.example.com", dispatch.Options{
//		Username: "deploy",
//		KeyPath:  "~/.ssh/id_ed25519",
//	})
//	if err != nil {
//		log.Fatal().Err(err).Msg("cannot reach host")
//	}
//	defer d.Close()
//
//	if err := d.Copy(ctx, "./dist", "/opt/app/releases"); err != nil {
//		// err is a *TransferError aggregating every failed path
//	}
//
//	res, err := d.Execute(ctx, "systemctl restart app")
//	if err == nil && res.ExitStatus != 0 {
//		// the command ran and failed; res.Stderr has the details
//	}
//
// # File management
//
//	ts, err := d.Connect()
//	if err != nil {
//		return err
//	}
//	if err := ts.Mkdir("/opt/app/releases"); err != nil { ... }
//
// Calling Connect again while the sub-session is open returns the same
// session. Close on the dispatcher tears down the sub-session and the
// transport; afterwards every operation fails with a *ClosedError.
package dispatch
