package cli

import (
	"github.com/spf13/cobra"
)

var (
	bridgePort string
	bridgeBaud int
	bridgeURL  string
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Forward serial sensor readings to the ingestion server",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := getApp()
		if cmd.Flags().Changed("port") {
			a.Config.Bridge.Port = bridgePort
		}
		if cmd.Flags().Changed("baud") {
			a.Config.Bridge.Baud = bridgeBaud
		}
		if cmd.Flags().Changed("url") {
			a.Config.Bridge.URL = bridgeURL
		}
		return a.Bridge(cmd.Context())
	},
}

func init() {
	bridgeCmd.Flags().StringVar(&bridgePort, "port", "", "Serial device (defaults to config)")
	bridgeCmd.Flags().IntVar(&bridgeBaud, "baud", 0, "Serial baud rate (defaults to config)")
	bridgeCmd.Flags().StringVar(&bridgeURL, "url", "", "Ingestion endpoint (defaults to config)")
}
