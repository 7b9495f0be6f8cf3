package pipeline

// DefaultChain returns the classifier chain used by the engine for
// every non-Rust asset element, tried in the order the upstream
// implementation registers its pipelines.
func DefaultChain() TryAcceptFunc {
	return Chain(
		TryAcceptCopyFile,
		TryAcceptCopyDir,
		TryAcceptSass,
		TryAcceptTailwindCss,
		TryAcceptCss,
		TryAcceptIcon,
		TryAcceptInline,
		TryAcceptJs,
	)
}
