// Copyright (C) 2026 Nimbus Labs (oss@nimbuslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/nimbuslabs/nimbus/pkg/ux"
)

func main() {
	// Execute the root command. Cobra handles parsing the arguments.
	// Handlers report their own failures through finish(); an error here
	// means the command line itself was invalid.
	if err := rootCmd.Execute(); err != nil {
		ux.Error(err.Error())
		osExit(1)
	}
}
