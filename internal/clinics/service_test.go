package clinics

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"clinic-portal/clinic-portal-backend/pkg/database/dbtest"
)

func validForm() *ClinicFormData {
	return &ClinicFormData{
		Name:       "Harbour Physio",
		Email:      "front@harbour.test",
		Phone:      "+351912345678",
		Address:    "Rua Augusta 10",
		City:       "Lisbon",
		Country:    "PT",
		PostalCode: "1100-053",
		Website:    "https://harbour.test",
	}
}

func newTestService(t *testing.T) *Service {
	db := dbtest.Open(t, &Clinic{})
	return NewService(NewRepository(db), zap.NewNop())
}

func TestClinicFormValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*ClinicFormData)
		path   string
	}{
		{"missing name", func(f *ClinicFormData) { f.Name = "" }, "name"},
		{"bad email", func(f *ClinicFormData) { f.Email = "front-desk" }, "email"},
		{"bad phone", func(f *ClinicFormData) { f.Phone = "912 345" }, "phone"},
		{"bad country", func(f *ClinicFormData) { f.Country = "Portugal" }, "country"},
		{"bad website", func(f *ClinicFormData) { f.Website = "harbour" }, "website"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			form := validForm()
			tc.mutate(form)

			var verr *ValidationError
			require.ErrorAs(t, form.Validate(), &verr)
			assert.Equal(t, tc.path, verr.Path)
		})
	}

	assert.NoError(t, validForm().Validate())
}

func TestCreateOrUpdateClinic(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	owner := uuid.New()

	created, err := svc.CreateOrUpdateClinic(ctx, owner, validForm())
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)

	form := validForm()
	form.Name = "Harbour Physio & Rehab"
	updated, err := svc.CreateOrUpdateClinic(ctx, owner, form)
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)

	got, err := svc.GetByOwner(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, "Harbour Physio & Rehab", got.Name)
}

func TestCreateOrUpdateClinicRejectsInvalid(t *testing.T) {
	svc := newTestService(t)
	form := validForm()
	form.Email = ""

	_, err := svc.CreateOrUpdateClinic(context.Background(), uuid.New(), form)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "email", verr.Path)
}

func TestDeleteAndRecreateClinic(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	owner := uuid.New()

	first, err := svc.CreateOrUpdateClinic(ctx, owner, validForm())
	require.NoError(t, err)

	has, err := svc.HasClinic(ctx, owner)
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, svc.DeleteByOwner(ctx, owner))
	has, err = svc.HasClinic(ctx, owner)
	require.NoError(t, err)
	assert.False(t, has)

	_, err = svc.GetByOwner(ctx, owner)
	assert.ErrorIs(t, err, ErrClinicNotFound)
	assert.ErrorIs(t, svc.DeleteByOwner(ctx, owner), ErrClinicNotFound)

	again, err := svc.CreateOrUpdateClinic(ctx, owner, validForm())
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	has, err = svc.HasClinic(ctx, owner)
	require.NoError(t, err)
	assert.True(t, has)
}
