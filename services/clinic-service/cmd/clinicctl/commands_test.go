package main

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rootWith(sub *cobra.Command) *cobra.Command {
	root := &cobra.Command{Use: "clinicctl", SilenceUsage: true, SilenceErrors: true}
	root.PersistentFlags().String("database-url", "", "")
	root.PersistentFlags().String("company", "", "")
	root.AddCommand(sub)
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	return root
}

func TestRegenerateRequiresConfirmation(t *testing.T) {
	root := rootWith(regenerateCmd())
	root.SetArgs([]string{"regenerate", "--company", "c1", "--database-url", "postgres://unused"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")
}

func TestDiagnoseRequiresCompany(t *testing.T) {
	t.Setenv("CLINIC_COMPANY_ID", "")
	root := rootWith(diagnoseCmd())
	root.SetArgs([]string{"diagnose", "--database-url", "postgres://unused"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "company")
}

func TestSettingsPreferFlagsOverEnv(t *testing.T) {
	t.Setenv("CLINIC_COMPANY_ID", "from-env")
	t.Setenv("DATABASE_URL", "postgres://env")

	cmd := &cobra.Command{Use: "x"}
	cmd.Flags().String("company", "", "")
	cmd.Flags().String("database-url", "", "")
	require.NoError(t, cmd.Flags().Set("company", "from-flag"))

	s, err := loadSettings(cmd)
	require.NoError(t, err)
	assert.Equal(t, "from-flag", s.CompanyID)
	assert.Equal(t, "postgres://env", s.DatabaseURL)
	assert.Equal(t, 100, s.BatchSize)
	assert.Equal(t, "localhost:9090", s.GRPCAddr)
}
