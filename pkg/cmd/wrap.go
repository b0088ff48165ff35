package cmd

import "context"

// Middleware decorates the execute step of every command run by a pipeline.
// It sees only invocations that passed argument resolution and preconditions.
type Middleware func(next ExecuteFunc) ExecuteFunc

// Wrap applies mws around fn. The first middleware is the outermost.
func Wrap(fn ExecuteFunc, mws ...Middleware) ExecuteFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			fn = mws[i](fn)
		}
	}
	return fn
}

// WithMiddleware installs execute middleware on the pipeline.
func WithMiddleware(mws ...Middleware) PipelineOption {
	return func(p *Pipeline) { p.middleware = append(p.middleware, mws...) }
}

func (p *Pipeline) run(ctx context.Context, d *Descriptor, inv *Invocation, args *Args) error {
	if len(p.middleware) == 0 {
		return d.Execute(ctx, inv, args)
	}
	return Wrap(d.Execute, p.middleware...)(ctx, inv, args)
}
