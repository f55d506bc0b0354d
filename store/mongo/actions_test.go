package mongo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flowplane/flowplane/catalog"
)

func insertTestAction(t *testing.T, cl *testClient, name, category, description string, active bool) *catalog.Action {
	t.Helper()
	now := time.Now().UTC()
	a := &catalog.Action{
		ActionName:  name,
		DisplayName: name,
		ClassName:   "TestService",
		MethodName:  name,
		Domain:      category,
		Endpoint:    "/api/v1/actions/" + name,
		HTTPMethod:  "POST",
		Description: description,
		Parameters:  map[string]any{},
		Returns:     map[string]any{},
		Category:    category,
		Tags:        []string{},
		IsActive:    active,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, cl.InsertAction(context.Background(), a))
	return a
}

func TestInsertAndGetActionByName(t *testing.T) {
	t.Parallel()

	cl := mustNewTestClient(t)
	a := insertTestAction(t, cl, "send_follow_up_email", "Carrier Follow Up", "Send a follow-up email", true)
	require.NotEmpty(t, a.ID)

	got, err := cl.GetActionByName(context.Background(), "send_follow_up_email")
	require.NoError(t, err)
	require.Equal(t, a.ID, got.ID)
	require.Equal(t, "Carrier Follow Up", got.Category)
	require.True(t, got.IsActive)

	_, err = cl.GetActionByName(context.Background(), "unknown_action")
	require.ErrorIs(t, err, catalog.ErrNotFound)

	_, err = cl.GetActionByName(context.Background(), "")
	require.EqualError(t, err, "action name is required")
}

func TestGetActionByID(t *testing.T) {
	t.Parallel()

	cl := mustNewTestClient(t)
	a := insertTestAction(t, cl, "create_escalation_ticket", "Escalation", "Open a ticket", true)

	got, err := cl.GetAction(context.Background(), a.ID)
	require.NoError(t, err)
	require.Equal(t, "create_escalation_ticket", got.ActionName)

	_, err = cl.GetAction(context.Background(), testOID(90).Hex())
	require.ErrorIs(t, err, catalog.ErrNotFound)

	_, err = cl.GetAction(context.Background(), "not-hex")
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestListActionsFilters(t *testing.T) {
	t.Parallel()

	cl := mustNewTestClient(t)
	insertTestAction(t, cl, "send_follow_up_email", "Carrier Follow Up", "Send a follow-up email to the carrier", true)
	insertTestAction(t, cl, "fetch_load_details", "Shipment Update", "Fetch load details from the TMS", true)
	insertTestAction(t, cl, "update_load_status", "Shipment Update", "Update the load status", true)
	insertTestAction(t, cl, "retired_action", "Escalation", "No longer offered", false)

	all, total, err := cl.ListActions(context.Background(), catalog.Filter{Limit: 100})
	require.NoError(t, err)
	require.Equal(t, 3, total, "inactive actions are hidden")
	require.Len(t, all, 3)
	require.Equal(t, "fetch_load_details", all[0].ActionName, "results come back in name order")

	byCategory, total, err := cl.ListActions(context.Background(), catalog.Filter{Category: "Shipment Update", Limit: 100})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Len(t, byCategory, 2)

	bySearch, total, err := cl.ListActions(context.Background(), catalog.Filter{Search: "LOAD", Limit: 100})
	require.NoError(t, err)
	require.Equal(t, 2, total, "search is case insensitive over names and descriptions")
	require.Len(t, bySearch, 2)

	byDescription, total, err := cl.ListActions(context.Background(), catalog.Filter{Search: "carrier", Limit: 100})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, "send_follow_up_email", byDescription[0].ActionName)

	page, total, err := cl.ListActions(context.Background(), catalog.Filter{Skip: 1, Limit: 1})
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Len(t, page, 1)
	require.Equal(t, "send_follow_up_email", page[0].ActionName)
}

func TestInsertActionValidates(t *testing.T) {
	t.Parallel()

	cl := mustNewTestClient(t)
	require.EqualError(t, cl.InsertAction(context.Background(), nil), "action is required")
	require.EqualError(t, cl.InsertAction(context.Background(), &catalog.Action{}), "action name is required")
}
