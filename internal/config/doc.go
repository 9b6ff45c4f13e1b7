// Package config turns the permissive, multi-shape serve options into one
// canonical, fully-defaulted ServeConfig.
//
// The loose surface (Options) accepts the shapes a hand-written project file
// or CLI produces: a content base that is a single path, a list of paths, or
// a path-to-mount mapping; proxy entries that are bare target strings or
// {target, stripPrefix} objects; a fallback that is a bool, a file path, a
// route list, or a {path, routes} object; a trace setting that is a bool, a
// format preset name, or a {format, filter} object.
//
// Normalize resolves every shape exactly once. Malformed values degrade to
// the nearest safe default with a warn-level diagnostic; the only fatal
// outcomes are an out-of-range port and unusable TLS material. Downstream
// components consume only the canonical form and never re-interpret shapes.
package config
