package cmd

import (
	"testing"

	"github.com/spf13/cobra"
)

func TestRootCmd_HasCommands(t *testing.T) {
	expectedCommands := []string{
		"serve",
		"catalog",
		"version",
	}

	commands := rootCmd.Commands()
	cmdNames := make(map[string]bool)
	for _, cmd := range commands {
		cmdNames[cmd.Name()] = true
	}

	for _, expected := range expectedCommands {
		if !cmdNames[expected] {
			t.Errorf("Expected command %q to be registered, but it's not", expected)
		}
	}
}

func TestRootCmd_Description(t *testing.T) {
	if rootCmd.Short == "" {
		t.Error("Root command should have a short description")
	}
	if rootCmd.Long == "" {
		t.Error("Root command should have a long description")
	}
	if rootCmd.Use != "featd" {
		t.Errorf("Root command Use should be 'featd', got %q", rootCmd.Use)
	}
}

func TestCatalogCmd_HasSubcommands(t *testing.T) {
	var cat *cobra.Command
	for _, cmd := range rootCmd.Commands() {
		if cmd.Name() == "catalog" {
			cat = cmd
			break
		}
	}

	if cat == nil {
		t.Fatal("catalog command not found")
	}

	expectedSubs := []string{"validate", "list"}
	subCmds := make(map[string]bool)
	for _, cmd := range cat.Commands() {
		subCmds[cmd.Name()] = true
	}

	for _, expected := range expectedSubs {
		if !subCmds[expected] {
			t.Errorf("Expected catalog subcommand %q to be registered", expected)
		}
	}
}
