package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"flood-alerts/internal/app"
)

var (
	simulateSensor  string
	simulateJarak   []int
	simulateWeather string
	simulateTemp    float64
	simulateNotify  bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Feed distances through classification and alerting",
	Example: `  floodwatch simulate --jarak 120,40,0
  floodwatch simulate --jarak 250 --weather "Heavy Rain" --temp 24`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(simulateJarak) == 0 {
			return errors.New("--jarak must be provided")
		}

		return getApp().Simulate(cmd.Context(), app.SimulateOptions{
			SensorID:    simulateSensor,
			Distances:   simulateJarak,
			Weather:     simulateWeather,
			Temperature: simulateTemp,
			Notify:      simulateNotify,
		})
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateSensor, "sensor", "", "Sensor identifier")
	simulateCmd.Flags().IntSliceVar(&simulateJarak, "jarak", nil, "Distances from sensor to water surface in cm, in order")
	simulateCmd.Flags().StringVar(&simulateWeather, "weather", "", "Forecast description to use instead of the live API")
	simulateCmd.Flags().Float64Var(&simulateTemp, "temp", 0, "Forecast temperature in °C (with --weather)")
	simulateCmd.Flags().BoolVar(&simulateNotify, "notify", false, "Dispatch notifications through the configured channels")
}
