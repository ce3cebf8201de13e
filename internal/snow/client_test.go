package snow_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/opsbridge/relay/internal/snow"
)

type instanceCall struct {
	method string
	path   string
	query  string
	user   string
	body   map[string]string
}

var _ = Describe("Client", func() {
	var (
		server  *httptest.Server
		calls   []instanceCall
		results []snow.Incident
		status  int
	)

	BeforeEach(func() {
		calls = nil
		results = nil
		status = http.StatusOK

		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, _, _ := r.BasicAuth()
			call := instanceCall{
				method: r.Method,
				path:   r.URL.Path,
				query:  r.URL.RawQuery,
				user:   user,
			}
			if r.Method == http.MethodPatch {
				_ = json.NewDecoder(r.Body).Decode(&call.body)
			}
			calls = append(calls, call)

			if status != http.StatusOK {
				w.WriteHeader(status)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{"result": results})
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	newClient := func() *snow.Client {
		return snow.NewClient(server.URL, "api-user", "api-pass", server.Client())
	}

	Describe("FindByNumber", func() {
		It("queries the table API with display values and basic auth", func() {
			results = []snow.Incident{{
				SysID:            "abc123",
				Number:           "INC0010042",
				State:            "New",
				ShortDescription: "Printer on fire",
				Priority:         "1 - Critical",
			}}

			inc, err := newClient().FindByNumber(context.Background(), "INC0010042")
			Expect(err).NotTo(HaveOccurred())
			Expect(inc.SysID).To(Equal("abc123"))
			Expect(inc.State).To(Equal("New"))

			Expect(calls).To(HaveLen(1))
			Expect(calls[0].method).To(Equal(http.MethodGet))
			Expect(calls[0].path).To(Equal("/api/now/table/incident"))
			Expect(calls[0].query).To(ContainSubstring("sysparm_query=number%3DINC0010042"))
			Expect(calls[0].query).To(ContainSubstring("sysparm_display_value=true"))
			Expect(calls[0].user).To(Equal("api-user"))
		})

		It("maps an empty result set to ErrNotFound", func() {
			_, err := newClient().FindByNumber(context.Background(), "INC0000001")
			Expect(err).To(MatchError(snow.ErrNotFound))
		})

		It("surfaces a non-2xx as a StatusError", func() {
			status = http.StatusBadGateway

			_, err := newClient().FindByNumber(context.Background(), "INC0010042")

			var statusErr *snow.StatusError
			Expect(err).To(HaveOccurred())
			Expect(errors.As(err, &statusErr)).To(BeTrue())
			Expect(statusErr.StatusCode).To(Equal(http.StatusBadGateway))
		})
	})

	Describe("Resolve", func() {
		It("patches the incident into the closed state with the fixed resolution", func() {
			err := newClient().Resolve(context.Background(), "abc123")
			Expect(err).NotTo(HaveOccurred())

			Expect(calls).To(HaveLen(1))
			Expect(calls[0].method).To(Equal(http.MethodPatch))
			Expect(calls[0].path).To(Equal("/api/now/table/incident/abc123"))
			Expect(calls[0].body).To(Equal(map[string]string{
				"state":       "7",
				"close_code":  "Solved (Work Around)",
				"close_notes": "Closed via Slack",
			}))
		})

		It("surfaces a non-2xx as a StatusError", func() {
			status = http.StatusForbidden

			err := newClient().Resolve(context.Background(), "abc123")

			var statusErr *snow.StatusError
			Expect(errors.As(err, &statusErr)).To(BeTrue())
			Expect(statusErr.StatusCode).To(Equal(http.StatusForbidden))
		})
	})

	Describe("IsTerminal", func() {
		It("treats resolved and closed states as terminal, display and numeric", func() {
			Expect(snow.IsTerminal("Resolved")).To(BeTrue())
			Expect(snow.IsTerminal("Closed")).To(BeTrue())
			Expect(snow.IsTerminal("6")).To(BeTrue())
			Expect(snow.IsTerminal("7")).To(BeTrue())
			Expect(snow.IsTerminal("New")).To(BeFalse())
			Expect(snow.IsTerminal("In Progress")).To(BeFalse())
			Expect(snow.IsTerminal("")).To(BeFalse())
		})
	})
})
