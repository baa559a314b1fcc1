package policy

import "maps"

// Context carries the attributes of a single request, such as the resource
// being touched or the command being run. Missing keys read as "".
type Context map[string]string

const (
	KeyResource = "resource"
	KeyPath     = "path"
	KeyCommand  = "command"
	KeyProgram  = "program"
	KeyURL      = "url"
	KeyHost     = "host"
	KeyTool     = "tool"
	KeyUser     = "user"
)

func (c Context) Get(key string) string {
	return c[key]
}

// Resource returns the resource attribute, falling back to path when no
// resource key is present at all.
func (c Context) Resource() string {
	if v, ok := c[KeyResource]; ok {
		return v
	}
	return c[KeyPath]
}

// With returns a copy of c with key set to value.
func (c Context) With(key, value string) Context {
	out := make(Context, len(c)+1)
	maps.Copy(out, c)
	out[key] = value
	return out
}

func (c Context) Clone() Context {
	if c == nil {
		return nil
	}
	return maps.Clone(c)
}
