// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for liveprobe commands.
//
// Configuration is loaded from a single file specified by either the
// LIVEPROBE_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]); [Resolve] picks between them and falls back to
// [Default] when neither is given. There is no automatic file search.
//
// The file is YAML. Files named *.json or *.jsonc are read through
// github.com/tidwall/jsonc first, so comments and trailing commas are
// allowed in them.
//
// The configuration file supports environment-specific sections
// (development, staging, production) that override base values when
// [Config].Environment matches. Production defaults to the resilient
// error policy: unless endpoint.strict is set, protocol errors on the
// dispatch path are logged rather than fatal.
//
// LIVEPROBE_DISABLE_COMPRESSION=1 forces codec.compression to none.
// No other environment variable overrides config values.
//
// Key exports:
//
//   - [Config] -- master struct with Endpoint, Codec, Sync
//   - [Default] -- returns a Config with development defaults
//   - [Load], [LoadFile] and [Resolve] -- the entry points for loading
package config
