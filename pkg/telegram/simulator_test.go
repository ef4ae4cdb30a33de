package telegram_test

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sietchlabs/scraper-go/pkg/request"
	"github.com/sietchlabs/scraper-go/pkg/telegram"
	"github.com/sietchlabs/scraper-go/pkg/types"
)

func fetchPage(sim *telegram.Simulator, limit int, cursor string) *types.MemberPage {
	GinkgoHelper()

	target := "https://api.example.org/groups/g/members?limit=" + strconv.Itoa(limit)
	if cursor != "" {
		target += "&cursor=" + cursor
	}
	resp, err := sim.Do(context.Background(), &request.Request{
		Target: target,
		Method: http.MethodGet,
	})
	Expect(err).NotTo(HaveOccurred())
	Expect(resp.StatusCode).To(Equal(http.StatusOK))

	var page types.MemberPage
	Expect(json.Unmarshal(resp.Body, &page)).To(Succeed())
	return &page
}

var _ = Describe("Simulator", func() {
	Describe("member pages", func() {
		It("honors the requested page limit", func() {
			sim := telegram.NewSimulator()
			sim.MembersPerGroup = 10

			page := fetchPage(sim, 4, "")
			Expect(page.Members).To(HaveLen(4))
			Expect(page.NextCursor).To(Equal("4"))
		})

		It("walks the whole group through cursors without repeating positions", func() {
			sim := telegram.NewSimulator()
			sim.MembersPerGroup = 10

			var total int
			cursor := ""
			for pages := 0; pages < 5; pages++ {
				page := fetchPage(sim, 4, cursor)
				total += len(page.Members)
				if page.NextCursor == "" {
					break
				}
				cursor = page.NextCursor
			}
			Expect(total).To(Equal(10))
		})

		It("omits the cursor on the final page", func() {
			sim := telegram.NewSimulator()
			sim.MembersPerGroup = 3

			page := fetchPage(sim, 10, "")
			Expect(page.Members).To(HaveLen(3))
			Expect(page.NextCursor).To(BeEmpty())
		})

		It("fabricates members with platform-shaped identifiers", func() {
			sim := telegram.NewSimulator()

			page := fetchPage(sim, 10, "")
			for _, m := range page.Members {
				Expect(m.UID).To(BeNumerically(">=", 100000000))
				Expect(m.UID).To(BeNumerically("<", 1000000000))
				Expect(m.ActivityLevel).To(BeNumerically(">=", 0))
				Expect(m.ActivityLevel).To(BeNumerically("<=", 10))
				Expect(string(m.Status)).To(BeElementOf("active", "inactive", "banned"))
			}
		})
	})

	Describe("invites", func() {
		inviteOnce := func(sim *telegram.Simulator) *request.Response {
			resp, err := sim.Do(context.Background(), &request.Request{
				Target: "https://api.example.org/bot123:abc/inviteToChannel",
				Method: http.MethodPost,
			})
			Expect(err).NotTo(HaveOccurred())
			return resp
		}

		It("always succeeds with a zero failure rate", func() {
			sim := telegram.NewSimulator()
			sim.InviteFailureRate = 0

			for i := 0; i < 20; i++ {
				Expect(inviteOnce(sim).StatusCode).To(Equal(http.StatusOK))
			}
		})

		It("always fails with a full failure rate", func() {
			sim := telegram.NewSimulator()
			sim.InviteFailureRate = 1

			for i := 0; i < 20; i++ {
				Expect(inviteOnce(sim).StatusCode).To(Equal(http.StatusBadRequest))
			}
		})
	})

	It("answers unknown targets with a 404", func() {
		sim := telegram.NewSimulator()

		resp, err := sim.Do(context.Background(), &request.Request{
			Target: "https://api.example.org/unknown",
			Method: http.MethodGet,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
	})

	It("refuses work once the context is canceled", func() {
		sim := telegram.NewSimulator()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := sim.Do(ctx, &request.Request{Target: "https://api.example.org/groups/g/members?limit=1"})
		Expect(err).To(MatchError(context.Canceled))
	})
})
