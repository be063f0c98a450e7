// Package config holds the persisted account/platform document and the
// daemon's environment-derived settings.
//
// The document lives in one YAML file shaped as
//
//	PlatformName:
//	  auto_upload: bool
//	  accounts:
//	    account-name: {active, authenticated, clip_folder, schedule, ...}
//
// The Store serializes access to it, writes atomically, and watches the file
// for external edits.
package config
