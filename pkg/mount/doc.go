// Package mount provides the operating-system side of the mount supervisor:
// running mount/umount, reading the mount table, and probing a mount point.
//
// # Logging Verbosity Convention
//
// This package follows Kubernetes logging conventions for verbosity levels:
//
//   - V(0): Always visible - programmer errors, panics
//   - V(2): Production default - operation outcomes, state changes
//     Examples: "Mounted //nas/share to /mnt/share", "Unmounted /mnt/share"
//   - V(4): Debug level - intermediate steps, parameters, diagnostics
//     Examples: "Probing /mnt/share", "Found 1 mount entry at /mnt/share"
//   - V(5): Trace level - command output, parsing details
//
// V(3) is avoided in favor of V(2) (if actionable) or V(4) (if diagnostic).
//
// Production deployments use V(2) by default. Set --v=4 for troubleshooting.
package mount
