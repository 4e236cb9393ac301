/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/cmd"

func main() {
	cmd.Execute()
}
