package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/BerniceZTT/crm_web/models"
	"github.com/BerniceZTT/crm_web/repository"
	"github.com/BerniceZTT/crm_web/utils"
)

type recordingAudit struct {
	mu      sync.Mutex
	entries []models.OperationLog
}

func (r *recordingAudit) Record(_ context.Context, e models.OperationLog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.ChangeEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e models.ChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type harness struct {
	backend *fakeBackend
	ws      *Workspace
	ctrl    *MutationController
	audit   *recordingAudit
	events  *recordingPublisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fb := newFakeBackend(t)
	ws := NewWorkspace("s1", fb.store(), 8)
	audit := &recordingAudit{}
	events := &recordingPublisher{}
	ctrl := NewMutationController(ws, audit, events)
	ctrl.newID = func() string { return "act-1" }
	return &harness{backend: fb, ws: ws, ctrl: ctrl, audit: audit, events: events}
}

func (h *harness) mount(t *testing.T) {
	t.Helper()
	if err := h.ws.Mount(context.Background()); err != nil {
		t.Fatalf("Mount() error = %v", err)
	}
}

func validClient(id, nit, name string) models.Client {
	return models.Client{
		ID:   models.ID(id),
		Nit:  nit,
		Name: name,
		Contacts: []models.Contact{
			{FirstName: "Ana", LastName: "Ruiz", Email: "ana@" + name + ".co", Phone: "300"},
		},
	}
}

func validOpportunity(id, clientID string, status models.OpportunityStatus) models.Opportunity {
	return models.Opportunity{
		ID:             models.ID(id),
		ClientID:       models.ID(clientID),
		BusinessName:   "Opp " + id,
		BusinessLine:   models.BusinessLineWeb,
		EstimatedValue: 1000,
		EstimatedDate:  "2024-06-01",
		Status:         status,
	}
}

func validActivity() models.FollowUpActivity {
	return models.FollowUpActivity{
		ContactType:    models.ContactTypeCall,
		ContactDate:    "2024-06-02",
		ClientContact:  models.Contact{FirstName: "Ana", LastName: "Ruiz", Email: "ana@acme.co", Phone: "300"},
		SalesExecutive: "Luis",
		Description:    "llamada inicial",
	}
}

func TestCreateClientRoundTrip(t *testing.T) {
	h := newHarness(t)
	h.mount(t)

	created, err := h.ctrl.CreateClient(context.Background(), validClient("", "123", "Acme"))
	if err != nil {
		t.Fatalf("CreateClient() error = %v", err)
	}
	if created.ID.IsZero() {
		t.Error("server-assigned id missing")
	}

	h.mount(t)
	clients := h.ws.Clients()
	if len(clients) != 1 || clients[0].Nit != "123" || clients[0].Name != "Acme" {
		t.Errorf("refetched clients = %+v", clients)
	}
	if len(h.events.events) != 1 || h.events.events[0].Action != models.ActionCreate {
		t.Errorf("events = %+v", h.events.events)
	}
}

func TestCreateFallsBackToSubmittedPayload(t *testing.T) {
	h := newHarness(t)
	h.backend.silent = true
	h.mount(t)

	created, err := h.ctrl.CreateClient(context.Background(), validClient("", "123", "Acme"))
	if err != nil {
		t.Fatalf("CreateClient() error = %v", err)
	}
	if created.Nit != "123" {
		t.Errorf("created = %+v", created)
	}
	if got := h.ws.Clients(); len(got) != 1 || got[0].Name != "Acme" {
		t.Errorf("local clients = %+v", got)
	}
}

func TestCreateFailureLeavesCollectionUnchanged(t *testing.T) {
	h := newHarness(t)
	h.backend.seed(models.ClientsCollection, validClient("1", "1", "Uno"))
	h.backend.failOn("POST /clients", http.StatusInternalServerError)
	h.mount(t)

	before := h.ws.Clients()
	_, err := h.ctrl.CreateClient(context.Background(), validClient("", "123", "Acme"))
	var terr *repository.TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if !reflect.DeepEqual(before, h.ws.Clients()) {
		t.Error("local clients changed after failed create")
	}
}

func TestCreateClientValidation(t *testing.T) {
	h := newHarness(t)
	h.mount(t)

	_, err := h.ctrl.CreateClient(context.Background(), models.Client{Name: "Sin NIT"})
	var vErr *utils.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if n := countRequests(h.backend.requests(), "POST"); n != 0 {
		t.Errorf("invalid payload sent %d POST requests", n)
	}
}

func TestUpdateFailureLeavesStateUntouched(t *testing.T) {
	h := newHarness(t)
	h.backend.seed(models.ClientsCollection, validClient("1", "1", "Uno"), validClient("2", "2", "Dos"))
	h.backend.failOn("PUT /clients/2", http.StatusBadRequest)
	h.mount(t)

	before := h.ws.Clients()
	update := validClient("2", "2", "Dos editado")
	_, err := h.ctrl.UpdateClient(context.Background(), "2", update)
	if err == nil {
		t.Fatal("expected update failure")
	}
	if err.Error() != "fallo en /clients/2" {
		t.Errorf("error message = %q, want backend message", err.Error())
	}
	if !reflect.DeepEqual(before, h.ws.Clients()) {
		t.Error("local clients changed after failed update")
	}
	if h.ws.LastError() == "" {
		t.Error("failure not recorded on workspace")
	}
	if h.ws.Pending().IsPending(models.EntityKindClient, "2") {
		t.Error("pending marker not cleared after failure")
	}

	// 重试
	h.backend.clearFailures()
	if _, err := h.ctrl.UpdateClient(context.Background(), "2", update); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if got := h.ws.Clients()[1].Name; got != "Dos editado" {
		t.Errorf("after retry name = %q", got)
	}
	if len(h.audit.entries) != 2 || h.audit.entries[0].Success || !h.audit.entries[1].Success {
		t.Errorf("audit = %+v", h.audit.entries)
	}
	if h.audit.entries[0].StatusCode != http.StatusBadRequest {
		t.Errorf("audit status = %d", h.audit.entries[0].StatusCode)
	}
}

func TestUpdateReplacesOnlyMatchingEntity(t *testing.T) {
	h := newHarness(t)
	h.backend.seed(models.ClientsCollection,
		validClient("1", "1", "Uno"), validClient("2", "2", "Dos"), validClient("3", "3", "Tres"))
	h.mount(t)

	before := h.ws.Clients()
	if _, err := h.ctrl.UpdateClient(context.Background(), "2", validClient("2", "2", "Dos editado")); err != nil {
		t.Fatalf("UpdateClient() error = %v", err)
	}
	after := h.ws.Clients()
	if len(after) != 3 {
		t.Fatalf("len = %d", len(after))
	}
	if !reflect.DeepEqual(before[0], after[0]) || !reflect.DeepEqual(before[2], after[2]) {
		t.Error("untouched entities changed")
	}
	if after[1].ID != "2" || after[1].Name != "Dos editado" {
		t.Errorf("updated entity = %+v", after[1])
	}
}

func TestUpdateUnknownClient(t *testing.T) {
	h := newHarness(t)
	h.mount(t)
	_, err := h.ctrl.UpdateClient(context.Background(), "9", validClient("9", "9", "Nueve"))
	var apiErr *utils.ApiError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 ApiError, got %v", err)
	}
}

func TestSetClientActive(t *testing.T) {
	h := newHarness(t)
	c := validClient("1", "1", "Uno")
	c.Active = true
	c.Opportunities = models.OpportunityLinks{{ID: "10", Name: "X", Stub: true}}
	h.backend.seed(models.ClientsCollection, c)
	h.mount(t)

	updated, err := h.ctrl.SetClientActive(context.Background(), "1", false)
	if err != nil {
		t.Fatalf("SetClientActive() error = %v", err)
	}
	if updated.Active {
		t.Error("client still active")
	}
	doc := h.backend.docs(models.ClientsCollection)[0]
	if doc["active"] != false {
		t.Errorf("backend active = %v", doc["active"])
	}
	stubs, ok := doc["opportunities"].([]interface{})
	if !ok || len(stubs) != 1 {
		t.Fatalf("opportunities = %#v", doc["opportunities"])
	}
	if _, isObject := stubs[0].(map[string]interface{}); !isObject {
		t.Errorf("stub shape not preserved: %#v", stubs[0])
	}
}

func TestTransitionGuard(t *testing.T) {
	h := newHarness(t)
	h.backend.seed(models.ClientsCollection, validClient("1", "1", "Uno"))
	h.backend.seed(models.OpportunitiesCollection, validOpportunity("10", "1", models.StatusApertura))
	h.mount(t)

	_, err := h.ctrl.UpdateOpportunity(context.Background(), "10", validOpportunity("10", "1", models.StatusEjecutada))
	var vErr *utils.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("skip to Ejecutada: expected ValidationError, got %v", err)
	}
	if n := countRequests(h.backend.requests(), "PUT"); n != 0 {
		t.Errorf("rejected transition sent %d PUT requests", n)
	}

	updated, err := h.ctrl.UpdateOpportunity(context.Background(), "10", validOpportunity("10", "1", models.StatusEnEstudio))
	if err != nil {
		t.Fatalf("Apertura -> En Estudio: %v", err)
	}
	if updated.Status != models.StatusEnEstudio {
		t.Errorf("status = %s", updated.Status)
	}

	_, err = h.ctrl.UpdateOpportunity(context.Background(), "10", validOpportunity("10", "1", models.StatusApertura))
	if !errors.As(err, &vErr) {
		t.Errorf("regression to Apertura: expected ValidationError, got %v", err)
	}
}

func TestCreateOpportunityLinksClient(t *testing.T) {
	h := newHarness(t)
	h.backend.seed(models.ClientsCollection, validClient("1", "1", "Uno"))
	h.mount(t)

	in := validOpportunity("", "1", "")
	created, err := h.ctrl.CreateOpportunity(context.Background(), in)
	if err != nil {
		t.Fatalf("CreateOpportunity() error = %v", err)
	}
	if created.Status != models.StatusApertura {
		t.Errorf("default status = %q", created.Status)
	}
	if created.Client != "Uno" {
		t.Errorf("client display name = %q", created.Client)
	}

	client := h.ws.Clients()[0]
	if !client.Opportunities.Contains(created.ID) {
		t.Errorf("client links = %+v, want %s", client.Opportunities, created.ID)
	}
	got := h.ws.ViewModel().OpportunitiesForClient("1")
	if len(got) != 1 || got[0].ID != created.ID {
		t.Errorf("OpportunitiesForClient = %+v", got)
	}
}

func TestCreateOpportunityLinkFailureKeepsOpportunity(t *testing.T) {
	h := newHarness(t)
	h.backend.seed(models.ClientsCollection, validClient("1", "1", "Uno"))
	h.backend.failOn("PUT /clients/1", http.StatusServiceUnavailable)
	h.mount(t)

	created, err := h.ctrl.CreateOpportunity(context.Background(), validOpportunity("", "1", ""))
	var linkErr *LinkError
	if !errors.As(err, &linkErr) {
		t.Fatalf("expected LinkError, got %v", err)
	}
	if len(h.ws.Opportunities()) != 1 {
		t.Error("created opportunity should stay in local state")
	}
	if got := h.ws.ViewModel().OpportunitiesForClient("1"); len(got) != 1 || got[0].ID != created.ID {
		t.Errorf("clientId linkage should still resolve, got %+v", got)
	}
}

func TestCreateOpportunityRequiresKnownClient(t *testing.T) {
	h := newHarness(t)
	h.mount(t)

	_, err := h.ctrl.CreateOpportunity(context.Background(), validOpportunity("", "404", ""))
	var vErr *utils.ValidationError
	if !errors.As(err, &vErr) || vErr.Fields["clientId"] == "" {
		t.Fatalf("expected clientId ValidationError, got %v", err)
	}
	_, err = h.ctrl.CreateOpportunity(context.Background(), validOpportunity("", "", models.StatusEnEstudio))
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestDeleteLastItemOnPageStepsBack(t *testing.T) {
	h := newHarness(t)
	h.backend.seed(models.ClientsCollection, validClient("1", "1", "Uno"))
	for i := 2; i <= 10; i++ {
		h.backend.seed(models.OpportunitiesCollection, validOpportunity(fmt.Sprint(i), "1", models.StatusApertura))
	}
	h.mount(t)

	if total := len(h.ws.Opportunities()); total != 9 {
		t.Fatalf("seeded %d opportunities, want 9", total)
	}
	if p := h.ws.GotoPage(models.EntityKindOpportunity, 1); p.Index != 1 {
		t.Fatalf("page index = %d, want 1", p.Index)
	}

	if err := h.ctrl.DeleteOpportunity(context.Background(), "10", DeleteOptions{}); err != nil {
		t.Fatalf("DeleteOpportunity() error = %v", err)
	}
	opps := h.ws.Opportunities()
	p := h.ws.Paginator(models.EntityKindOpportunity)
	if len(opps) != 8 {
		t.Errorf("total = %d, want 8", len(opps))
	}
	if PageCount(len(opps), p.Size) != 1 {
		t.Errorf("pageCount = %d, want 1", PageCount(len(opps), p.Size))
	}
	if p.Index != 0 {
		t.Errorf("page index = %d, want 0", p.Index)
	}
}

func TestDeleteOpportunityFollowUpCascade(t *testing.T) {
	tests := []struct {
		name      string
		cascade   bool
		wantFollw int
	}{
		{"orphaned by default", false, 1},
		{"cascade removes follow-up", true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.backend.seed(models.ClientsCollection, validClient("1", "1", "Uno"))
			h.backend.seed(models.OpportunitiesCollection, validOpportunity("10", "1", models.StatusApertura))
			h.backend.seed(models.FollowUpCollection, models.FollowUp{ID: "f1", OpportunityID: "10",
				FollowUpActivities: []models.FollowUpActivity{validActivity()}})
			h.mount(t)

			if err := h.ctrl.DeleteOpportunity(context.Background(), "10", DeleteOptions{Cascade: tt.cascade}); err != nil {
				t.Fatalf("DeleteOpportunity() error = %v", err)
			}
			if got := len(h.backend.docs(models.FollowUpCollection)); got != tt.wantFollw {
				t.Errorf("backend follow-ups = %d, want %d", got, tt.wantFollw)
			}
			if got := len(h.ws.FollowUps()); got != tt.wantFollw {
				t.Errorf("local follow-ups = %d, want %d", got, tt.wantFollw)
			}
		})
	}
}

func TestCascadeFailureReportsDeletedOpportunity(t *testing.T) {
	h := newHarness(t)
	h.backend.seed(models.OpportunitiesCollection, validOpportunity("10", "1", models.StatusApertura))
	h.backend.seed(models.FollowUpCollection, models.FollowUp{ID: "f1", OpportunityID: "10",
		FollowUpActivities: []models.FollowUpActivity{validActivity()}})
	h.backend.failOn("DELETE /follow/f1", http.StatusInternalServerError)
	h.mount(t)

	err := h.ctrl.DeleteOpportunity(context.Background(), "10", DeleteOptions{Cascade: true})
	var cascadeErr *CascadeError
	if !errors.As(err, &cascadeErr) {
		t.Fatalf("expected *CascadeError, got %T %v", err, err)
	}
	if cascadeErr.FollowUpID != "f1" {
		t.Errorf("FollowUpID = %q", cascadeErr.FollowUpID)
	}
	if len(h.ws.Opportunities()) != 0 || len(h.backend.docs(models.OpportunitiesCollection)) != 0 {
		t.Error("opportunity should be deleted locally and remotely")
	}
	if len(h.ws.FollowUps()) != 1 {
		t.Error("follow-up removed locally despite failed delete")
	}
}

func TestDeleteFailureKeepsEntity(t *testing.T) {
	h := newHarness(t)
	h.backend.seed(models.OpportunitiesCollection, validOpportunity("10", "1", models.StatusApertura))
	h.backend.failOn("DELETE /opportunities/10", http.StatusInternalServerError)
	h.mount(t)

	if err := h.ctrl.DeleteOpportunity(context.Background(), "10", DeleteOptions{Cascade: true}); err == nil {
		t.Fatal("expected delete failure")
	}
	if len(h.ws.Opportunities()) != 1 {
		t.Error("opportunity removed despite failure")
	}
	if n := countRequests(h.backend.requests(), "DELETE /follow"); n != 0 {
		t.Errorf("cascade ran after failed delete (%d requests)", n)
	}
}

func TestPendingMutationRejected(t *testing.T) {
	h := newHarness(t)
	h.backend.seed(models.ClientsCollection, validClient("1", "1", "Uno"))
	h.mount(t)

	if err := h.ws.Pending().Begin(models.EntityKindClient, "1"); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	_, err := h.ctrl.SetClientActive(context.Background(), "1", true)
	if !errors.Is(err, ErrMutationPending) {
		t.Fatalf("expected ErrMutationPending, got %v", err)
	}
	if n := countRequests(h.backend.requests(), "PUT"); n != 0 {
		t.Errorf("pending mutation sent %d requests", n)
	}
	h.ws.Pending().End(models.EntityKindClient, "1")
	if _, err := h.ctrl.SetClientActive(context.Background(), "1", true); err != nil {
		t.Errorf("after End: %v", err)
	}
}

func TestAddActivityCreatesThenAppends(t *testing.T) {
	h := newHarness(t)
	h.backend.seed(models.ClientsCollection, validClient("1", "1", "Uno"))
	h.backend.seed(models.OpportunitiesCollection, validOpportunity("10", "1", models.StatusApertura))
	h.mount(t)

	first, err := h.ctrl.AddActivity(context.Background(), "10", validActivity())
	if err != nil {
		t.Fatalf("first AddActivity() error = %v", err)
	}
	if first.OpportunityID != "10" || len(first.FollowUpActivities) != 1 || first.FollowUpActivities[0].ID != "act-1" {
		t.Errorf("created follow-up = %+v", first)
	}

	h.ctrl.newID = func() string { return "act-2" }
	second, err := h.ctrl.AddActivity(context.Background(), "10", validActivity())
	if err != nil {
		t.Fatalf("second AddActivity() error = %v", err)
	}
	if second.ID != first.ID || len(second.FollowUpActivities) != 2 {
		t.Errorf("appended follow-up = %+v", second)
	}
	if n := len(h.backend.docs(models.FollowUpCollection)); n != 1 {
		t.Errorf("backend follow-up records = %d, want 1", n)
	}
	if got := h.ws.ViewModel().ActivitiesForOpportunity("10"); len(got) != 2 || got[1].ID != "act-2" {
		t.Errorf("activities = %+v", got)
	}
}

func TestUpdateAndDeleteActivity(t *testing.T) {
	h := newHarness(t)
	a1, a2 := validActivity(), validActivity()
	a1.ID, a2.ID = "a1", "a2"
	h.backend.seed(models.OpportunitiesCollection, validOpportunity("10", "1", models.StatusApertura))
	h.backend.seed(models.FollowUpCollection, models.FollowUp{ID: "f1", OpportunityID: "10",
		FollowUpActivities: []models.FollowUpActivity{a1, a2}})
	h.mount(t)

	edit := validActivity()
	edit.Description = "reunión de cierre"
	updated, err := h.ctrl.UpdateActivity(context.Background(), "f1", "a2", edit)
	if err != nil {
		t.Fatalf("UpdateActivity() error = %v", err)
	}
	if updated.FollowUpActivities[1].ID != "a2" || updated.FollowUpActivities[1].Description != "reunión de cierre" {
		t.Errorf("updated = %+v", updated.FollowUpActivities)
	}

	remaining, err := h.ctrl.DeleteActivity(context.Background(), "f1", "a1")
	if err != nil {
		t.Fatalf("DeleteActivity() error = %v", err)
	}
	if len(remaining.FollowUpActivities) != 1 || remaining.FollowUpActivities[0].ID != "a2" {
		t.Errorf("remaining = %+v", remaining.FollowUpActivities)
	}

	_, err = h.ctrl.DeleteActivity(context.Background(), "f1", "missing")
	var apiErr *utils.ApiError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("unknown activity: %v", err)
	}
}

// retryPending 在进行中冲突时重试，直到得到其他结果
func retryPending(fn func() error) error {
	for {
		err := fn()
		if !errors.Is(err, ErrMutationPending) {
			return err
		}
		time.Sleep(time.Millisecond)
	}
}

func TestConcurrentAddActivityKeepsEveryActivity(t *testing.T) {
	h := newHarness(t)
	a0 := validActivity()
	a0.ID = "a0"
	h.backend.seed(models.OpportunitiesCollection, validOpportunity("10", "1", models.StatusApertura))
	h.backend.seed(models.FollowUpCollection, models.FollowUp{ID: "f1", OpportunityID: "10",
		FollowUpActivities: []models.FollowUpActivity{a0}})
	h.mount(t)

	const workers = 10
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 1; i <= workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := validActivity()
			in.ID = models.ID(fmt.Sprintf("a%d", i))
			errs <- retryPending(func() error {
				_, err := h.ctrl.AddActivity(context.Background(), "10", in)
				return err
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("AddActivity() error = %v", err)
		}
	}

	if got := h.ws.ViewModel().ActivitiesForOpportunity("10"); len(got) != workers+1 {
		t.Errorf("local activities = %d, want %d", len(got), workers+1)
	}
	docs := h.backend.docs(models.FollowUpCollection)
	if len(docs) != 1 {
		t.Fatalf("backend follow-up records = %d, want 1", len(docs))
	}
	if acts, _ := docs[0]["followUpActivities"].([]interface{}); len(acts) != workers+1 {
		t.Errorf("backend activities = %d, want %d", len(acts), workers+1)
	}
}

func TestConcurrentUpdateNeverRollsBackStatus(t *testing.T) {
	for round := 0; round < 20; round++ {
		h := newHarness(t)
		h.backend.seed(models.ClientsCollection, validClient("1", "1", "Uno"))
		h.backend.seed(models.OpportunitiesCollection, validOpportunity("10", "1", models.StatusApertura))
		h.mount(t)

		var wg sync.WaitGroup
		var advanceErr, stayErr error
		submit := func(status models.OpportunityStatus, out *error) {
			defer wg.Done()
			*out = retryPending(func() error {
				_, err := h.ctrl.UpdateOpportunity(context.Background(), "10", validOpportunity("10", "1", status))
				return err
			})
		}
		wg.Add(2)
		go submit(models.StatusEnEstudio, &advanceErr)
		go submit(models.StatusApertura, &stayErr)
		wg.Wait()

		if advanceErr != nil {
			t.Fatalf("round %d: advance error = %v", round, advanceErr)
		}
		var vErr *utils.ValidationError
		if stayErr != nil && !errors.As(stayErr, &vErr) {
			t.Fatalf("round %d: stale update error = %v", round, stayErr)
		}
		if got := h.ws.Opportunities()[0].Status; got != models.StatusEnEstudio {
			t.Fatalf("round %d: local status = %s, want %s", round, got, models.StatusEnEstudio)
		}
		if got := h.backend.docs(models.OpportunitiesCollection)[0]["status"]; got != string(models.StatusEnEstudio) {
			t.Fatalf("round %d: backend status = %v", round, got)
		}
	}
}
