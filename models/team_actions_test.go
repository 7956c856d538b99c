package models

import (
	"errors"
	"testing"

	"gorm.io/gorm"
)

func TestNormalizeTeamName(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"acme", "Acme Team"},
		{"acme team", "Acme Team"},
		{"ACME TEAM", "Acme Team"},
		{"  sales and marketing  ", "Sales And Marketing Team"},
		{"Platform Team", "Platform Team"},
	}
	for _, tc := range cases {
		if got := NormalizeTeamName(tc.in); got != tc.want {
			t.Errorf("NormalizeTeamName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestPersonalTeamName(t *testing.T) {
	cases := []struct {
		name, want string
	}{
		{"Bob Smith", "Bob's Team"},
		{"James Brown", "James' Team"},
		{"", "Personal Team"},
	}
	for _, tc := range cases {
		user := &User{Name: tc.name}
		if got := PersonalTeamName(user); got != tc.want {
			t.Errorf("PersonalTeamName(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestCreateTeamMovesDefaultFlag(t *testing.T) {
	db := newTestDB(t)
	owner := createUser(t, db, "Alice Smith", "alice@example.com")

	first := mustCreateTeam(t, db, owner, "First", true)
	second := mustCreateTeam(t, db, owner, "Second", true)

	var reloaded Team
	if err := db.First(&reloaded, first.ID).Error; err != nil {
		t.Fatalf("reloading first team: %v", err)
	}
	if reloaded.Default {
		t.Error("previous default team must lose the flag")
	}
	if !second.Default {
		t.Error("new team must carry the default flag")
	}
}

func TestCreateTeamRejectsDuplicateName(t *testing.T) {
	db := newTestDB(t)
	alice := createUser(t, db, "Alice Smith", "alice@example.com")
	bob := createUser(t, db, "Bob Jones", "bob@example.com")

	mustCreateTeam(t, db, alice, "Acme", true)

	// Names are globally unique, even across owners
	if _, err := CreateTeam(db, bob, "Acme", true); !errors.Is(err, ErrTeamNameTaken) {
		t.Fatalf("expected ErrTeamNameTaken, got %v", err)
	}
	// Normalization collapses variants onto the same name
	if _, err := CreateTeam(db, bob, "ACME team", true); !errors.Is(err, ErrTeamNameTaken) {
		t.Fatalf("expected ErrTeamNameTaken for normalized duplicate, got %v", err)
	}
}

func TestUpdateTeamDefaultFlagRules(t *testing.T) {
	db := newTestDB(t)
	owner := createUser(t, db, "Alice Smith", "alice@example.com")
	first := mustCreateTeam(t, db, owner, "First", true)
	second := mustCreateTeam(t, db, owner, "Second", false)

	// Clearing the only default is rejected
	if err := UpdateTeam(db, owner, first, first.Name, false); !errors.Is(err, ErrNoDefaultTeam) {
		t.Fatalf("expected ErrNoDefaultTeam, got %v", err)
	}

	// Promoting another team clears the old default
	if err := UpdateTeam(db, owner, second, second.Name, true); err != nil {
		t.Fatalf("promoting second team: %v", err)
	}
	var reloaded Team
	if err := db.First(&reloaded, first.ID).Error; err != nil {
		t.Fatalf("reloading first team: %v", err)
	}
	if reloaded.Default {
		t.Error("old default team must lose the flag when another is promoted")
	}
}

func TestUpdateTeamNormalizesName(t *testing.T) {
	db := newTestDB(t)
	owner := createUser(t, db, "Alice Smith", "alice@example.com")
	team := mustCreateTeam(t, db, owner, "First", true)
	other := mustCreateTeam(t, db, owner, "Acme", false)

	if err := UpdateTeam(db, owner, team, "sales and marketing", true); err != nil {
		t.Fatalf("renaming team: %v", err)
	}
	if team.Name != "Sales And Marketing Team" {
		t.Errorf("renamed to %q, want the normalized form", team.Name)
	}

	// A rename collides with other teams on the normalized name
	if err := UpdateTeam(db, owner, other, "SALES and marketing", false); !errors.Is(err, ErrTeamNameTaken) {
		t.Fatalf("expected ErrTeamNameTaken for normalized duplicate, got %v", err)
	}
}

func TestAllTeamsSortedByName(t *testing.T) {
	db := newTestDB(t)
	owner := createUser(t, db, "Alice Smith", "alice@example.com")
	other := createUser(t, db, "Bob Jones", "bob@example.com")
	mustCreateTeam(t, db, owner, "Zenith", true)
	mustCreateTeam(t, db, owner, "Acme", false)
	joined := mustCreateTeam(t, db, other, "Midway", true)
	addMember(t, db, joined, owner, RoleStandard)

	teams, err := AllTeams(db, owner)
	if err != nil {
		t.Fatalf("listing teams: %v", err)
	}
	var got []string
	for _, tm := range teams {
		got = append(got, tm.Name)
	}
	want := []string{"Acme Team", "Midway Team", "Zenith Team"}
	if len(got) != len(want) {
		t.Fatalf("got %d teams %v, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("teams[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDeleteTeamRejectsLastOwnedTeam(t *testing.T) {
	db := newTestDB(t)
	owner := createUser(t, db, "Alice Smith", "alice@example.com")
	team := mustCreateTeam(t, db, owner, "Only", true)

	if _, err := DeleteTeam(db, owner, team); !errors.Is(err, ErrLastOwnedTeam) {
		t.Fatalf("expected ErrLastOwnedTeam, got %v", err)
	}
}

func TestDeleteTeamRejectsNonOwner(t *testing.T) {
	db := newTestDB(t)
	owner := createUser(t, db, "Alice Smith", "alice@example.com")
	member := createUser(t, db, "Bob Jones", "bob@example.com")
	team := mustCreateTeam(t, db, owner, "Acme", true)
	mustCreateTeam(t, db, owner, "Backup", false)
	addMember(t, db, team, member, RoleAdministrator)

	// Even a member holding the admin role may not delete the team
	if _, err := DeleteTeam(db, member, team); !errors.Is(err, ErrNotTeamOwner) {
		t.Fatalf("expected ErrNotTeamOwner, got %v", err)
	}
}

func TestDeleteTeamCascadesAndPromotesReplacement(t *testing.T) {
	db := newTestDB(t)
	owner := createUser(t, db, "Alice Smith", "alice@example.com")
	member := createUser(t, db, "Bob Jones", "bob@example.com")

	doomed := mustCreateTeam(t, db, owner, "Doomed", true)
	other := mustCreateTeam(t, db, owner, "Other", false)
	addMember(t, db, doomed, member, RoleStandard)

	invitation := TeamInvitation{TeamID: doomed.ID, Email: "carol@example.com", RoleID: roleByName(t, db, doomed, RoleLite).ID}
	if err := db.Create(&invitation).Error; err != nil {
		t.Fatalf("creating invitation: %v", err)
	}

	replacement, err := DeleteTeam(db, owner, doomed)
	if err != nil {
		t.Fatalf("deleting team: %v", err)
	}
	if replacement.ID != other.ID {
		t.Fatalf("expected replacement team %d, got %d", other.ID, replacement.ID)
	}
	if !replacement.Default {
		t.Error("replacement must be promoted to default when the default was deleted")
	}

	for name, count := range map[string]int64{
		"teams":       countWhere(t, db, &Team{}, "id = ?", doomed.ID),
		"roles":       countWhere(t, db, &Role{}, "team_id = ?", doomed.ID),
		"permissions": countWhere(t, db, &Permission{}, "team_id = ?", doomed.ID),
		"memberships": countWhere(t, db, &Membership{}, "team_id = ?", doomed.ID),
		"invitations": countWhere(t, db, &TeamInvitation{}, "team_id = ?", doomed.ID),
	} {
		if count != 0 {
			t.Errorf("%s not cleaned up: %d rows remain", name, count)
		}
	}
}

func countWhere(t *testing.T, db *gorm.DB, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()

	var count int64
	if err := db.Model(model).Where(query, args...).Count(&count).Error; err != nil {
		t.Fatalf("counting %T: %v", model, err)
	}
	return count
}

func TestDefaultTeamFallsBackToFirstOwned(t *testing.T) {
	db := newTestDB(t)
	owner := createUser(t, db, "Alice Smith", "alice@example.com")
	first := mustCreateTeam(t, db, owner, "First", false)
	mustCreateTeam(t, db, owner, "Second", false)

	team, err := DefaultTeam(db, owner)
	if err != nil {
		t.Fatalf("resolving default team: %v", err)
	}
	if team.ID != first.ID {
		t.Errorf("expected fallback to first owned team %d, got %d", first.ID, team.ID)
	}
}

func TestAddTeamMemberErrors(t *testing.T) {
	db := newTestDB(t)
	owner := createUser(t, db, "Alice Smith", "alice@example.com")
	member := createUser(t, db, "Bob Jones", "bob@example.com")
	team := mustCreateTeam(t, db, owner, "Acme", true)
	foreign := mustCreateTeam(t, db, createUser(t, db, "Carol White", "carol@example.com"), "Foreign", true)

	foreignRole := roleByName(t, db, foreign, RoleStandard)
	if err := AddTeamMember(db, team, member.Email, foreignRole.ID); !errors.Is(err, ErrRoleNotInTeam) {
		t.Fatalf("expected ErrRoleNotInTeam for another team's role, got %v", err)
	}

	role := roleByName(t, db, team, RoleStandard)
	if err := AddTeamMember(db, team, "ghost@example.com", role.ID); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	if err := AddTeamMember(db, team, member.Email, role.ID); err != nil {
		t.Fatalf("adding member: %v", err)
	}
	if err := AddTeamMember(db, team, member.Email, role.ID); !errors.Is(err, ErrAlreadyOnTeam) {
		t.Fatalf("expected ErrAlreadyOnTeam, got %v", err)
	}
}

func TestRemovedMemberCanRejoin(t *testing.T) {
	db := newTestDB(t)
	owner := createUser(t, db, "Alice Smith", "alice@example.com")
	member := createUser(t, db, "Bob Jones", "bob@example.com")
	team := mustCreateTeam(t, db, owner, "Acme", true)
	addMember(t, db, team, member, RoleStandard)

	if err := team.RemoveUser(db, member.ID); err != nil {
		t.Fatalf("removing member: %v", err)
	}
	if BelongsToTeam(db, member, team) {
		t.Fatal("removed member must no longer belong to the team")
	}

	// The unique (team, user) index must not trip over the removed row
	addMember(t, db, team, member, RoleLite)
	role, err := TeamRole(db, member, team)
	if err != nil {
		t.Fatalf("resolving role after rejoin: %v", err)
	}
	if role == nil || role.Name != RoleLite {
		t.Fatalf("rejoined member role = %+v, want lite", role)
	}
}

func TestConsumedInvitationEmailCanBeReinvited(t *testing.T) {
	db := newTestDB(t)
	owner := createUser(t, db, "Alice Smith", "alice@example.com")
	invitee := createUser(t, db, "Bob Jones", "bob@example.com")
	team := mustCreateTeam(t, db, owner, "Acme", true)
	role := roleByName(t, db, team, RoleStandard)

	invitation := TeamInvitation{TeamID: team.ID, Email: invitee.Email, RoleID: role.ID}
	if err := db.Create(&invitation).Error; err != nil {
		t.Fatalf("creating invitation: %v", err)
	}
	if err := AcceptInvitation(db, &invitation, invitee); err != nil {
		t.Fatalf("accepting invitation: %v", err)
	}
	if err := team.RemoveUser(db, invitee.ID); err != nil {
		t.Fatalf("removing member: %v", err)
	}

	// The unique (team, email) index must not trip over the consumed row
	again := TeamInvitation{TeamID: team.ID, Email: invitee.Email, RoleID: role.ID}
	if err := db.Create(&again).Error; err != nil {
		t.Fatalf("re-inviting after removal: %v", err)
	}
}

func TestAcceptInvitationAttachesAndConsumes(t *testing.T) {
	db := newTestDB(t)
	owner := createUser(t, db, "Alice Smith", "alice@example.com")
	invitee := createUser(t, db, "Bob Jones", "bob@example.com")
	team := mustCreateTeam(t, db, owner, "Acme", true)
	role := roleByName(t, db, team, RoleStandard)

	invitation := TeamInvitation{TeamID: team.ID, Email: invitee.Email, RoleID: role.ID}
	if err := db.Create(&invitation).Error; err != nil {
		t.Fatalf("creating invitation: %v", err)
	}

	if err := AcceptInvitation(db, &invitation, invitee); err != nil {
		t.Fatalf("accepting invitation: %v", err)
	}

	var membership Membership
	if err := db.Where("team_id = ? AND user_id = ?", team.ID, invitee.ID).First(&membership).Error; err != nil {
		t.Fatalf("membership not created: %v", err)
	}
	if membership.RoleID != role.ID {
		t.Errorf("membership role = %d, want %d", membership.RoleID, role.ID)
	}
	if n := countWhere(t, db, &TeamInvitation{}, "id = ?", invitation.ID); n != 0 {
		t.Error("invitation must be consumed on accept")
	}
}

func TestAcceptInvitationForExistingMemberOnlyConsumes(t *testing.T) {
	db := newTestDB(t)
	owner := createUser(t, db, "Alice Smith", "alice@example.com")
	member := createUser(t, db, "Bob Jones", "bob@example.com")
	team := mustCreateTeam(t, db, owner, "Acme", true)
	addMember(t, db, team, member, RoleLite)

	invitation := TeamInvitation{TeamID: team.ID, Email: member.Email, RoleID: roleByName(t, db, team, RoleStandard).ID}
	if err := db.Create(&invitation).Error; err != nil {
		t.Fatalf("creating invitation: %v", err)
	}

	if err := AcceptInvitation(db, &invitation, member); err != nil {
		t.Fatalf("accepting invitation: %v", err)
	}

	// The existing membership keeps its role; no duplicate row appears
	if n := countWhere(t, db, &Membership{}, "team_id = ? AND user_id = ?", team.ID, member.ID); n != 1 {
		t.Fatalf("expected a single membership row, got %d", n)
	}
	role, err := TeamRole(db, member, team)
	if err != nil {
		t.Fatalf("resolving role: %v", err)
	}
	if role.Name != RoleLite {
		t.Errorf("existing membership role changed to %s", role.Name)
	}
}

func TestUpdateMemberRole(t *testing.T) {
	db := newTestDB(t)
	owner := createUser(t, db, "Alice Smith", "alice@example.com")
	member := createUser(t, db, "Bob Jones", "bob@example.com")
	team := mustCreateTeam(t, db, owner, "Acme", true)
	addMember(t, db, team, member, RoleLite)

	admin := roleByName(t, db, team, RoleAdministrator)
	if err := UpdateMemberRole(db, team, member.ID, admin.ID, true); err != nil {
		t.Fatalf("updating member role: %v", err)
	}
	role, err := TeamRole(db, member, team)
	if err != nil {
		t.Fatalf("resolving role: %v", err)
	}
	if role.Name != RoleAdministrator {
		t.Errorf("role = %s, want %s", role.Name, RoleAdministrator)
	}

	if err := UpdateMemberRole(db, team, 9999, admin.ID, true); !errors.Is(err, ErrMemberNotFound) {
		t.Fatalf("expected ErrMemberNotFound for unknown member, got %v", err)
	}
}

func TestUpdateMemberRoleForPendingInvitation(t *testing.T) {
	db := newTestDB(t)
	owner := createUser(t, db, "Alice Smith", "alice@example.com")
	team := mustCreateTeam(t, db, owner, "Acme", true)
	lite := roleByName(t, db, team, RoleLite)
	standard := roleByName(t, db, team, RoleStandard)

	invitation := TeamInvitation{TeamID: team.ID, Email: "carol@example.com", RoleID: lite.ID}
	if err := db.Create(&invitation).Error; err != nil {
		t.Fatalf("creating invitation: %v", err)
	}

	if err := UpdateMemberRole(db, team, invitation.ID, standard.ID, false); err != nil {
		t.Fatalf("updating invitation role: %v", err)
	}

	var reloaded TeamInvitation
	if err := db.First(&reloaded, invitation.ID).Error; err != nil {
		t.Fatalf("reloading invitation: %v", err)
	}
	if reloaded.RoleID != standard.ID {
		t.Errorf("invitation role = %d, want %d", reloaded.RoleID, standard.ID)
	}
}

func TestDeleteAccountCascades(t *testing.T) {
	db := newTestDB(t)
	alice := createUser(t, db, "Alice Smith", "alice@example.com")
	bob := createUser(t, db, "Bob Jones", "bob@example.com")

	aliceTeam := mustCreateTeam(t, db, alice, "Alpha", true)
	bobTeam := mustCreateTeam(t, db, bob, "Beta", true)
	addMember(t, db, bobTeam, alice, RoleStandard)
	addMember(t, db, aliceTeam, bob, RoleLite)

	if err := DeleteAccount(db, alice); err != nil {
		t.Fatalf("deleting account: %v", err)
	}

	if n := countWhere(t, db, &User{}, "id = ?", alice.ID); n != 0 {
		t.Error("user row must be removed")
	}
	if n := countWhere(t, db, &Team{}, "user_id = ?", alice.ID); n != 0 {
		t.Error("owned teams must be removed")
	}
	if n := countWhere(t, db, &Membership{}, "user_id = ?", alice.ID); n != 0 {
		t.Error("memberships elsewhere must be removed")
	}

	// Bob's team survives with Bob still owning it
	if n := countWhere(t, db, &Team{}, "id = ?", bobTeam.ID); n != 1 {
		t.Error("other owners' teams must survive the cascade")
	}
}
