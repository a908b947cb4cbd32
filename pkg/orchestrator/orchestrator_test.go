package orchestrator_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/jordigilh/taskforge/pkg/adapter"
	"github.com/jordigilh/taskforge/pkg/adapter/mockadapter"
	"github.com/jordigilh/taskforge/pkg/classifier"
	"github.com/jordigilh/taskforge/pkg/events"
	"github.com/jordigilh/taskforge/pkg/orchestrator"
	"github.com/jordigilh/taskforge/pkg/planner"
	"github.com/jordigilh/taskforge/pkg/safety"
	"github.com/jordigilh/taskforge/pkg/stagegate"
	"github.com/jordigilh/taskforge/pkg/task"
	"github.com/jordigilh/taskforge/pkg/validation"
	"github.com/jordigilh/taskforge/pkg/verification"
)

func newHarness(root string, mock *mockadapter.Mock) (*orchestrator.Orchestrator, *task.Store, *events.RecordingEmitter) {
	store := task.NewStore(nil)
	registry := validation.NewRegistry()
	cfg := verification.DefaultConfig(registry)
	// The mtime check is exercised in package verification's own tests;
	// here, fixture files are written once up front rather than at the
	// moment the mock adapter "dispatches", so modification-time would
	// spuriously read as stale.
	cfg.CheckModification = false
	verifier := verification.New(cfg, root)
	rec := &events.RecordingEmitter{}
	gate := stagegate.New(safety.NewChecker(), verifier, rec)
	adapters := adapter.NewRegistry(mock)
	orchCfg := orchestrator.Config{MaxConcurrentTasks: 5, DefaultTaskTimeout: time.Second}
	o := orchestrator.New(store, classifier.Default(), safety.NewChecker(), gate, adapters, rec, nil, nil, orchCfg)
	return o, store, rec
}

func eventNames(rec *events.RecordingEmitter) []string {
	var names []string
	for _, e := range rec.Events {
		names = append(names, e.Name)
	}
	return names
}

var _ = Describe("Orchestrator", func() {
	var root string

	BeforeEach(func() {
		root = GinkgoT().TempDir()
	})

	Context("hallucinated completion (scenario 1)", func() {
		It("retries once then fails terminal with two verification.failed events", func() {
			mock := mockadapter.New(
				mockadapter.Scenario{Claim: task.Claim{Changes: []task.ChangeClaim{{FilePath: "src/foo.ts", Action: task.ActionModified}}}},
				mockadapter.Scenario{Claim: task.Claim{Changes: []task.ChangeClaim{{FilePath: "src/foo.ts", Action: task.ActionModified}}}},
			)
			o, _, rec := newHarness(root, mock)

			st := o.Submit(task.Task{
				VTID:   "VTID-T1",
				Domain: task.DomainBackend,
				Retry:  task.RetryParams{MaxRetries: 1, RetryDelay: 10 * time.Millisecond, BackoffMultiplier: 2.0},
			})

			Eventually(func() task.Status { return st.Status }, 2*time.Second, 5*time.Millisecond).Should(Equal(task.StatusFailed))

			Expect(eventNames(rec)).To(ContainElements(events.StageVerificationFailed, events.TaskFailed))
			failedCount := 0
			for _, n := range eventNames(rec) {
				if n == events.StageVerificationFailed {
					failedCount++
				}
			}
			Expect(failedCount).To(Equal(2))
			Expect(st.RetryReasons).To(HaveLen(1))
		})
	})

	Context("secret leak in output (scenario 2)", func() {
		It("fails terminal without retry", func() {
			mock := mockadapter.New(mockadapter.Scenario{
				Claim: task.Claim{Output: "ANTHROPIC_API_KEY=sk_ant_1234567890abcdef1234567890abcdef"},
			})
			o, _, rec := newHarness(root, mock)

			st := o.Submit(task.Task{VTID: "VTID-T2", Domain: task.DomainBackend})

			Eventually(func() task.Status { return st.Status }, 2*time.Second, 5*time.Millisecond).Should(Equal(task.StatusFailed))

			Expect(st.RetryCount).To(Equal(0))
			Expect(eventNames(rec)).To(ContainElement(events.StageVerificationFailed))
		})
	})

	Context("unsafe schema (scenario 3)", func() {
		It("fails terminal on a missing RLS policy without retry", func() {
			sqlFile := "supabase/migrations/001.sql"
			mock := mockadapter.New(mockadapter.Scenario{
				Claim: task.Claim{Changes: []task.ChangeClaim{{
					FilePath: sqlFile,
					Action:   task.ActionCreated,
					Content:  "CREATE TABLE users (id uuid);",
				}}},
			})
			o, _, _ := newHarness(root, mock)
			Expect(os.MkdirAll(filepath.Join(root, "supabase/migrations"), 0o755)).To(Succeed())
			Expect(os.WriteFile(filepath.Join(root, sqlFile), []byte("CREATE TABLE users (id uuid);"), 0o644)).To(Succeed())

			st := o.Submit(task.Task{VTID: "VTID-T3", Domain: task.DomainMemory})

			Eventually(func() task.Status { return st.Status }, 2*time.Second, 5*time.Millisecond).Should(Equal(task.StatusFailed))
			Expect(st.RetryCount).To(Equal(0))
		})
	})

	Context("retry with backoff (scenario 5)", func() {
		It("observes increasing backoff delays before the final completion", func() {
			file := "src/foo.ts"
			Expect(os.MkdirAll(filepath.Join(root, "src"), 0o755)).To(Succeed())
			Expect(os.WriteFile(filepath.Join(root, file), []byte("x"), 0o644)).To(Succeed())

			falseClaim := task.Claim{Changes: []task.ChangeClaim{{FilePath: "src/missing.ts", Action: task.ActionModified}}}
			trueClaim := task.Claim{Changes: []task.ChangeClaim{{FilePath: file, Action: task.ActionModified}}}
			mock := mockadapter.New(
				mockadapter.Scenario{Claim: falseClaim},
				mockadapter.Scenario{Claim: falseClaim},
				mockadapter.Scenario{Claim: trueClaim},
			)
			o, _, _ := newHarness(root, mock)

			start := time.Now()
			st := o.Submit(task.Task{
				VTID:   "VTID-T5",
				Domain: task.DomainBackend,
				Retry:  task.RetryParams{MaxRetries: 2, RetryDelay: 100 * time.Millisecond, BackoffMultiplier: 2.0},
			})

			Eventually(func() task.Status { return st.Status }, 3*time.Second, 5*time.Millisecond).Should(Equal(task.StatusCompleted))

			Expect(time.Since(start)).To(BeNumerically(">=", 300*time.Millisecond))
			Expect(st.RetryCount).To(Equal(2))
		})
	})

	Context("timeout (scenario 6)", func() {
		It("transitions to timeout and invokes adapter cancel exactly once", func() {
			mock := mockadapter.New(mockadapter.Scenario{NeverCompletes: true})
			o, _, rec := newHarness(root, mock)

			st := o.Submit(task.Task{
				VTID:    "VTID-T6",
				Domain:  task.DomainBackend,
				Timeout: 50 * time.Millisecond,
			})

			Eventually(func() task.Status { return st.Status }, 2*time.Second, 5*time.Millisecond).Should(Equal(task.StatusTimeout))
			Eventually(func() int { return mock.CancelCount }, time.Second, 5*time.Millisecond).Should(Equal(1))

			for _, n := range eventNames(rec) {
				Expect(n).NotTo(HavePrefix("vtid.stage.verification"))
			}
		})
	})

	Context("mixed-domain success (scenario 4)", func() {
		It("fans out to three ordered sub-tasks and aggregates their changes", func() {
			memFile := "supabase/migrations/001.sql"
			backendFile := "services/gateway/src/routes/ledger.ts"
			frontendFile := "services/gateway/src/frontend/LedgerPanel.tsx"
			for _, f := range []string{memFile, backendFile, frontendFile} {
				Expect(os.MkdirAll(filepath.Join(root, filepath.Dir(f)), 0o755)).To(Succeed())
				Expect(os.WriteFile(filepath.Join(root, f), []byte("-- ok"), 0o644)).To(Succeed())
			}

			mock := mockadapter.New(
				mockadapter.Scenario{Claim: task.Claim{Changes: []task.ChangeClaim{{FilePath: memFile, Action: task.ActionModified}}, Artifacts: []string{"migration"}}},
				mockadapter.Scenario{Claim: task.Claim{Changes: []task.ChangeClaim{{FilePath: backendFile, Action: task.ActionModified}}}},
				mockadapter.Scenario{Claim: task.Claim{Changes: []task.ChangeClaim{{FilePath: frontendFile, Action: task.ActionModified}}}},
			)
			o, _, _ := newHarness(root, mock)

			st := o.Submit(task.Task{
				VTID:        "VTID-T4",
				Title:       "Add OASIS ledger API with dashboard panel",
				TargetPaths: []string{memFile, backendFile, frontendFile},
			})

			Eventually(func() task.Status { return st.Status }, 3*time.Second, 5*time.Millisecond).Should(Equal(task.StatusCompleted))

			Expect(st.Task.Domain).To(Equal(task.DomainMixed))
			Expect(st.Children).To(HaveLen(3))
			Expect(st.ClaimedChanges).To(HaveLen(3))
			Expect(st.ClaimedChanges[0].FilePath).To(Equal(memFile))
			Expect(st.ClaimedChanges[1].FilePath).To(Equal(backendFile))
			Expect(st.ClaimedChanges[2].FilePath).To(Equal(frontendFile))
		})
	})

	Context("cancellation", func() {
		It("moves a never-completing task to cancelled on request", func() {
			mock := mockadapter.New(mockadapter.Scenario{NeverCompletes: true})
			o, _, _ := newHarness(root, mock)

			st := o.Submit(task.Task{VTID: "VTID-T7", Domain: task.DomainBackend, Timeout: time.Minute})
			Eventually(func() task.Status { return st.Status }, time.Second, 5*time.Millisecond).Should(Equal(task.StatusInProgress))

			Expect(o.Cancel(st.Task.ID)).To(BeTrue())
			Eventually(func() task.Status { return st.Status }, time.Second, 5*time.Millisecond).Should(Equal(task.StatusCancelled))
		})
	})

	Context("planning", func() {
		It("attaches a decomposed plan to the task's attributes before dispatch", func() {
			mock := mockadapter.New(mockadapter.Scenario{Claim: task.Claim{}})
			o, _, _ := newHarness(root, mock)

			st := o.Submit(task.Task{
				VTID:        "VTID-T8",
				Domain:      task.DomainMemory,
				Description: "Write the migration. Backfill tenant id.",
			})

			Eventually(func() task.Status { return st.Status }, 2*time.Second, 5*time.Millisecond).Should(Equal(task.StatusCompleted))

			plan, ok := st.Task.Attributes[planner.AttributeKey].([]planner.Step)
			Expect(ok).To(BeTrue())
			Expect(plan).To(HaveLen(2))
			Expect(plan[0].Description).To(Equal("Write the migration"))
			Expect(plan[1].Description).To(Equal("Backfill tenant id"))
		})

		It("leaves attributes untouched when the description yields no steps", func() {
			mock := mockadapter.New(mockadapter.Scenario{Claim: task.Claim{}})
			o, _, _ := newHarness(root, mock)

			st := o.Submit(task.Task{VTID: "VTID-T9", Domain: task.DomainMemory})
			Eventually(func() task.Status { return st.Status }, 2*time.Second, 5*time.Millisecond).Should(Equal(task.StatusCompleted))

			Expect(st.Task.Attributes).NotTo(HaveKey(planner.AttributeKey))
		})
	})
})
