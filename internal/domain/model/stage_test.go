package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageUnmarshalText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    Stage
		wantErr bool
	}{
		{name: "primary", in: "primary", want: StagePrimary},
		{name: "mixed case and spaces", in: "  Certificates ", want: StageCertificates},
		{name: "links", in: "links", want: StageLinks},
		{name: "company", in: "COMPANY", want: StageCompany},
		{name: "unknown", in: "whois", wantErr: true},
		{name: "empty", in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseStage(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidStage))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAllStagesAreValid(t *testing.T) {
	t.Parallel()
	stages := AllStages()
	require.Len(t, stages, 4)
	for _, s := range stages {
		assert.True(t, s.Valid(), s)
	}
}

func TestStageStateLeaseExpired(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	assert.False(t, NotStarted().LeaseExpired(now))
	assert.False(t, StageState{Status: StatusClaimed}.LeaseExpired(now), "claims without lease never expire")
	assert.True(t, StageState{Status: StatusClaimed, LeaseExpiresAt: &past}.LeaseExpired(now))
	assert.False(t, StageState{Status: StatusClaimed, LeaseExpiresAt: &future}.LeaseExpired(now))
	assert.False(t, StageState{Status: StatusDone, LeaseExpiresAt: &past}.LeaseExpired(now))
}

func TestOwnerSearchTerm(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "B12345678", Owner{Titular: "Example Co", Identificacion: "B12345678"}.SearchTerm())
	assert.Equal(t, "Example Co", Owner{Titular: " Example Co "}.SearchTerm())
	assert.Empty(t, Owner{}.SearchTerm())
	assert.False(t, Owner{Titular: "  "}.HasData())
}

func TestClaimFilterMatches(t *testing.T) {
	t.Parallel()
	assert.True(t, ClaimFilter{}.Matches(Owner{}))
	assert.False(t, ClaimFilter{RequireOwner: true}.Matches(Owner{}))
	assert.True(t, ClaimFilter{RequireOwner: true}.Matches(Owner{Identificacion: "B1"}))
}

func TestDecodePayloadSelectsStageType(t *testing.T) {
	t.Parallel()

	p, err := DecodePayload(StageCompany, []byte(`{"search_term":"B1","company":{"nif":"B1","name":"Example Co"}}`))
	require.NoError(t, err)
	company, ok := p.(*CompanyPayload)
	require.True(t, ok)
	require.NotNil(t, company.Company)
	assert.Equal(t, "Example Co", company.Company.Name)

	p, err = DecodePayload(StagePrimary, nil)
	require.NoError(t, err)
	assert.Equal(t, StagePrimary, p.Stage())

	_, err = DecodePayload(Stage("bogus"), []byte(`{}`))
	assert.ErrorIs(t, err, ErrInvalidStage)
}

func TestHasInvocationFailure(t *testing.T) {
	t.Parallel()
	assert.False(t, HasInvocationFailure([]error{errors.New("timeout")}))
	assert.True(t, HasInvocationFailure([]error{errors.Join(ErrInvocationFailed, errors.New("panic"))}))
	assert.Equal(t, []string{"a"}, ErrorStrings([]error{nil, errors.New("a")}))
}

func TestWorkerIdentityString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "host-a:42", WorkerIdentity{Host: "host-a", PID: 42}.String())
	assert.Equal(t, "host-a:42:abcd", WorkerIdentity{Host: "host-a", PID: 42, Instance: "abcd"}.String())

	id := NewWorkerIdentity()
	assert.NotEmpty(t, id.Host)
	assert.Len(t, id.Instance, 8)
}
