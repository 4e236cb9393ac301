/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"log"
	"os"
	"path/filepath"

	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/plot"
	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/results"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// plotCmd represents the plot command
var plotCmd = &cobra.Command{
	Use:   "plot",
	Short: "Render CU vs ZW comparison figures from the result files",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runPlot(); err != nil {
			log.Fatal(err)
		}
	},
}

var thresStart float64
var thresStop float64
var thresStep float64
var plotIndex int

func init() {
	rootCmd.AddCommand(plotCmd)

	plotCmd.Flags().Float64Var(&thresStart, "thres-start", 0, "First PAoI threshold in seconds")
	plotCmd.Flags().Float64Var(&thresStop, "thres-stop", 30, "Last PAoI threshold in seconds")
	plotCmd.Flags().Float64Var(&thresStep, "thres-step", 0.5, "Threshold step in seconds")
	plotCmd.Flags().IntVar(&plotIndex, "index", 1, "Sweep point used for the violation probability figure")
}

func runPlot() error {
	zl, err := newLogger()
	if err != nil {
		return err
	}

	cfg, err := loadConfig(zl)
	if err != nil {
		return err
	}

	series, err := plot.LoadMeans(cfg, zl)
	if err != nil {
		return err
	}

	meanPath := filepath.Join(cfg.FiguresDirpath, plot.MeanFigure)
	if err := plot.MeanVsServiceTime(series, meanPath); err != nil {
		return err
	}
	zl.Info("Saved figure", zap.String("path", meanPath))

	samples := make(map[string][]float64)
	var order []string
	for _, policy := range plot.Policies {
		path := cfg.ResultPath(policy, plotIndex)
		values, err := results.Load(path)
		if errors.Is(err, os.ErrNotExist) {
			zl.Warn("Skipping missing result file", zap.String("path", path))
			continue
		}
		if err != nil {
			return err
		}

		samples[policy.String()] = values
		order = append(order, policy.String())
	}

	violationPath := filepath.Join(cfg.FiguresDirpath, plot.ViolationFigure)
	thresholds := plot.Thresholds(thresStart, thresStop, thresStep)
	if err := plot.ViolationProbability(samples, order, thresholds, violationPath); err != nil {
		return err
	}
	zl.Info("Saved figure", zap.String("path", violationPath), zap.Int("index", plotIndex))

	return nil
}

