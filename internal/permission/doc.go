// Package permission defines the vocabulary personas use to describe tool
// access policy (allow/deny/ask actions over bash/edit/webfetch/external-dir/
// doom-loop permission types). The core agent run state machine dispatches
// tools unconditionally — it has no user-facing consent prompt to gate —
// so only the type vocabulary survives here for internal/persona to build
// allowlists against; the interactive checker/pattern-matcher that used to
// enforce it at tool-call time belongs to a UI this module doesn't
// implement.
package permission
