package usecase

import (
	"context"
	"testing"

	"github.com/shandysiswandi/stepguard/internal/admin/entity"
	"github.com/shandysiswandi/stepguard/internal/pkg/goerror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBootstrapSeedsEmptyAllowList(t *testing.T) {
	// Arrange
	h := newHarness(t, "")
	h.db.members = map[string]entity.Member{}

	// Act
	err := h.uc.Bootstrap(context.Background(), BootstrapInput{
		Addresses: []string{" Owner@Example.org ", "second@example.org"},
		Role:      "superadmin",
	})

	// Assert
	require.NoError(t, err)
	require.Len(t, h.db.members, 2)
	owner := h.db.members["owner@example.org"]
	assert.Equal(t, "superadmin", owner.Role)
	assert.Equal(t, 1, owner.Level)
	assert.True(t, owner.Enabled)
	assert.True(t, h.db.members["second@example.org"].Enabled)
}

func TestBootstrapLeavesSeededAllowList(t *testing.T) {
	// Arrange
	h := newHarness(t, "")

	// Act
	err := h.uc.Bootstrap(context.Background(), BootstrapInput{Addresses: []string{"owner@example.org"}, Role: "superadmin"})

	// Assert
	require.NoError(t, err)
	assert.Len(t, h.db.members, 2)
	assert.NotContains(t, h.db.members, "owner@example.org")
}

func TestBootstrapRejections(t *testing.T) {
	tests := []struct {
		name     string
		in       BootstrapInput
		wantCode goerror.Code
		wantErr  bool
	}{
		{name: "nothing configured", in: BootstrapInput{Role: "superadmin"}},
		{name: "malformed address", in: BootstrapInput{Addresses: []string{"not-an-address"}, Role: "superadmin"}, wantCode: goerror.CodeInvalidInput, wantErr: true},
		{name: "role without permissions", in: BootstrapInput{Addresses: []string{"owner@example.org"}, Role: "ghost"}, wantCode: goerror.CodeInvalidInput, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			h := newHarness(t, "")
			h.db.members = map[string]entity.Member{}

			// Act
			err := h.uc.Bootstrap(context.Background(), tt.in)

			// Assert
			if tt.wantErr {
				assert.Equal(t, tt.wantCode, goerror.CodeOf(err))
			} else {
				assert.NoError(t, err)
			}
			assert.Empty(t, h.db.members)
		})
	}
}
