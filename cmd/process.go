/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"log"

	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/results"
	"github.com/spf13/cobra"
)

// processCmd represents the process command
var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Summarize PAoI logs into result files",
	Long: `Drops the warm-up prefix of a PAoI log, prints mean, variance and
standard deviation of the remainder and writes it to a result file.

Without --log every sweep point of the configured policy is processed.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runProcess(); err != nil {
			log.Fatal(err)
		}
	},
}

var processLog string
var processOut string
var processMinSamples int

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().StringVar(&processLog, "log", "", "PAoI log to process")
	processCmd.Flags().StringVar(&processOut, "out", "", "Result file to write, empty only prints the summary")
	processCmd.Flags().IntVar(&processMinSamples, "min-samples", -1, "Warm-up samples to drop, defaults to minSamples from the config")
}

func runProcess() error {
	zl, err := newLogger()
	if err != nil {
		return err
	}

	if processLog != "" {
		minSamples := processMinSamples
		if minSamples < 0 {
			cfg, err := loadConfig(zl)
			if err != nil {
				return err
			}
			minSamples = cfg.MinSamples
		}

		summary, err := results.Process(processLog, processOut, minSamples)
		if err != nil {
			return err
		}
		printSummary(processLog, summary)
		return nil
	}

	cfg, err := loadConfig(zl)
	if err != nil {
		return err
	}

	for _, run := range cfg.Runs() {
		if processMinSamples >= 0 {
			run.MinSamples = processMinSamples
		}

		summary, err := results.Process(run.LogPath, run.MatPath, run.MinSamples)
		if err != nil {
			return err
		}
		printSummary(run.LogPath, summary)
	}
	return nil
}

func printSummary(path string, s results.Summary) {
	fmt.Printf("%s: samples=%d mean=%.4f variance=%.4f std=%.4f\n",
		path, len(s.Samples), s.Mean, s.Variance, s.StdDev)
}
