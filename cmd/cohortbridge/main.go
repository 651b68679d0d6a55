// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cohortbridge/cohortbridge/internal/commands/serve"
	"github.com/cohortbridge/cohortbridge/internal/commands/shared"
	versioncmd "github.com/cohortbridge/cohortbridge/internal/commands/version"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	shared.SetVersion(version, commit, buildDate)

	rootCmd := &cobra.Command{
		Use:   "cohortbridge",
		Short: "MCP gateway for building OHDSI cohort definitions",
		Long: `cohortbridge exposes OHDSI WebAPI cohort-building operations as MCP
tools: vocabulary search, concept set construction, cohort definition
assembly and validation, and persistence to a WebAPI instance.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	jsonFlag, configFlag := shared.RegisterFlagPointers()
	rootCmd.PersistentFlags().BoolVar(jsonFlag, "json", false, "Output machine-readable JSON where supported")
	rootCmd.PersistentFlags().StringVar(configFlag, "config", "", "Path to config file (default: environment only)")

	rootCmd.AddCommand(serve.NewCommand())
	rootCmd.AddCommand(versioncmd.NewCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
