package llm

import "context"

type sourcesKey struct{}

// WithSources names the screenshot files behind the images sent with ctx,
// for logging.
func WithSources(ctx context.Context, files ...string) context.Context {
	return context.WithValue(ctx, sourcesKey{}, files)
}

func sourcesFrom(ctx context.Context) []string {
	files, _ := ctx.Value(sourcesKey{}).([]string)
	return files
}
