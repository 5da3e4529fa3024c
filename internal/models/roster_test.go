package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRosterForClearance(t *testing.T) {
	roster := RosterFor(FormTypeClearance)
	require.Len(t, roster, 10)
	require.NotContains(t, roster, OfficePresident)
}

func TestRosterForEnrollment(t *testing.T) {
	require.Equal(t, []OfficeRole{
		OfficeBusinessManager,
		OfficeRegistrar,
		OfficeAcademicDean,
	}, RosterFor(FormTypeEnrollment))
}

func TestRosterForGraduation(t *testing.T) {
	roster := RosterFor(FormTypeGraduation)
	require.Len(t, roster, 4)
	require.Equal(t, OfficePresident, roster[len(roster)-1])
	for _, role := range RosterFor(FormTypeEnrollment) {
		require.Contains(t, roster, role)
	}
}

func TestRosterForReturnsCopy(t *testing.T) {
	first := RosterFor(FormTypeClearance)
	first[0] = OfficePresident
	require.NotEqual(t, OfficePresident, RosterFor(FormTypeClearance)[0])
}

func TestFormTypesForOffice(t *testing.T) {
	require.Equal(t, []FormType{FormTypeGraduation}, FormTypesForOffice(OfficePresident))
	require.Equal(t, []FormType{FormTypeClearance}, FormTypesForOffice(OfficeDormSupervisor))
	require.Equal(t,
		[]FormType{FormTypeClearance, FormTypeEnrollment, FormTypeGraduation},
		FormTypesForOffice(OfficeRegistrar))
}
