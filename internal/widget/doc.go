// Package widget assembles one chat widget instance from its configuration.
//
// Mount validates the configuration, builds the REST client, the shared cable
// consumer and the conversation engine, then fetches the account theme and
// bootstraps a conversation concurrently. An invalid configuration is logged
// and nothing is started. A failed bootstrap does not fail Mount: the error
// is visible in the engine's state and Restart retries.
//
//	w, err := widget.Mount(ctx, cfg, widget.WithLogger(logger))
//	if err != nil { ... }
//	defer w.Unmount()
//
//	for snap := range w.Engine().Subscribe(ctx) { ... }
//
// MountFromAttributes is the auto-init path for script-tag style attributes.
// A Registry keeps at most one widget per container and replaces an existing
// one on remount.
package widget
