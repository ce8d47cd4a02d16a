// Command mobistudy runs the MobiStudy participant and health data API.
//
// @title                       MobiStudy API
// @version                     1.0
// @description                 Participants, study enrollments and health data ingestion for MobiStudy.
// @BasePath                    /api
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "mobistudy",
	Short:         "MobiStudy participant and health data API",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, sweepCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "mobistudy: %v\n", err)
		os.Exit(1)
	}
}
