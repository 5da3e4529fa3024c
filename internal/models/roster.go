package models

// OfficeRole identifies an office on a form's signing roster.
type OfficeRole string

const (
	OfficeDormSupervisor        OfficeRole = "dorm_supervisor"
	OfficeCanteenConcessionaire OfficeRole = "canteen_concessionaire"
	OfficeLibraryDirector       OfficeRole = "library_director"
	OfficeScholarshipDirector   OfficeRole = "scholarship_director"
	OfficeITDirector            OfficeRole = "it_director"
	OfficeStudentAffairs        OfficeRole = "student_affairs"
	OfficeCashier               OfficeRole = "cashier"
	OfficeBusinessManager       OfficeRole = "business_manager"
	OfficeRegistrar             OfficeRole = "registrar"
	OfficeAcademicDean          OfficeRole = "academic_dean"
	OfficePresident             OfficeRole = "president"
)

// Each form type carries its own required signing set. Clearance routes
// through every campus office; enrollment and graduation only need the
// records offices, with the president added for graduation.
var (
	clearanceRoster = []OfficeRole{
		OfficeDormSupervisor,
		OfficeCanteenConcessionaire,
		OfficeLibraryDirector,
		OfficeScholarshipDirector,
		OfficeITDirector,
		OfficeStudentAffairs,
		OfficeCashier,
		OfficeBusinessManager,
		OfficeRegistrar,
		OfficeAcademicDean,
	}
	enrollmentRoster = []OfficeRole{
		OfficeBusinessManager,
		OfficeRegistrar,
		OfficeAcademicDean,
	}
	graduationRoster = []OfficeRole{
		OfficeBusinessManager,
		OfficeRegistrar,
		OfficeAcademicDean,
		OfficePresident,
	}
)

// RosterFor returns the ordered office roles whose approval a form of the
// given type requires. The returned slice is a copy.
func RosterFor(formType FormType) []OfficeRole {
	var base []OfficeRole
	switch formType {
	case FormTypeEnrollment:
		base = enrollmentRoster
	case FormTypeGraduation:
		base = graduationRoster
	default:
		base = clearanceRoster
	}
	roster := make([]OfficeRole, len(base))
	copy(roster, base)
	return roster
}

// FormTypesForOffice returns the form types whose roster includes the office.
// Drives the signatory work queue so an office only sees forms it can sign.
func FormTypesForOffice(role OfficeRole) []FormType {
	var types []FormType
	for _, t := range []FormType{FormTypeClearance, FormTypeEnrollment, FormTypeGraduation} {
		for _, r := range RosterFor(t) {
			if r == role {
				types = append(types, t)
				break
			}
		}
	}
	return types
}

// ValidOfficeRole reports whether the role is a known office.
func ValidOfficeRole(role OfficeRole) bool {
	switch role {
	case OfficeDormSupervisor, OfficeCanteenConcessionaire, OfficeLibraryDirector,
		OfficeScholarshipDirector, OfficeITDirector, OfficeStudentAffairs,
		OfficeCashier, OfficeBusinessManager, OfficeRegistrar,
		OfficeAcademicDean, OfficePresident:
		return true
	}
	return false
}
