package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/pterm/pterm"

	"github.com/mcdev12/majorityrules/go/internal/client"
	"github.com/mcdev12/majorityrules/go/internal/game"
	"github.com/mcdev12/majorityrules/go/internal/intent"
	"github.com/mcdev12/majorityrules/go/internal/poller"
)

func renderTiers() error {
	data := pterm.TableData{{"Tier", "Name", "Entry fee"}}
	for _, t := range intent.Tiers() {
		data = append(data, []string{strconv.Itoa(int(t.Tier)), t.Name, strconv.FormatUint(t.Fee, 10)})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func renderGames(games []client.GameSummary) error {
	if len(games) == 0 {
		pterm.Info.Println("No open games")
		return nil
	}
	data := pterm.TableData{{"Game", "Tier", "Players", "Prize pool", "Created"}}
	for _, g := range games {
		data = append(data, []string{
			g.GameID,
			g.Tier.String(),
			strconv.Itoa(g.PlayerCount),
			strconv.FormatUint(g.PrizePool, 10),
			time.UnixMilli(g.CreatedAtMs).Format(time.DateTime),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func renderAction(name string, res *client.ActionResult) {
	path := "self-funded"
	if res.Sponsored {
		path = "sponsored"
	}
	pterm.Success.Printfln("%s submitted (%s) digest=%s", name, path, res.Digest)
	if res.GameID != "" {
		pterm.Info.Printfln("game %s", res.GameID)
	}
}

func renderUpdate(u poller.Update) {
	if t := u.Transition; t != nil {
		pterm.Info.Printfln("%s -> %s (round %d)", t.From, t.To, t.Round)
	}
	renderView(u.View, time.Now())
}

func renderView(v game.View, now time.Time) {
	pterm.DefaultSection.Printfln("Game %s", v.GameID)

	rows := pterm.TableData{
		{"Phase", string(v.Phase)},
		{"Round", strconv.FormatUint(v.Round, 10)},
		{"Players", fmt.Sprintf("%d (%d eliminated)", v.PlayerCount, v.EliminatedCount)},
		{"Prize pool", strconv.FormatUint(v.PrizePool, 10)},
	}
	if v.Asker != "" {
		rows = append(rows, []string{"Asker", v.Asker})
	}
	if q := v.Question; q != nil {
		rows = append(rows,
			[]string{"Question", q.Text},
			[]string{"Options", fmt.Sprintf("1) %s  2) %s  3) %s", q.OptionA, q.OptionB, q.OptionC)},
		)
	}
	if t := v.Tally; t != nil {
		rows = append(rows, []string{"Votes", fmt.Sprintf("%d/%d/%d, majority %d", t.A, t.B, t.C, t.Majority)})
	}
	if !v.Deadline.IsZero() {
		rows = append(rows, []string{"Time left", v.TimeRemaining(now).Round(time.Second).String()})
	}
	if err := pterm.DefaultTable.WithData(rows).Render(); err != nil {
		pterm.Error.Println(err)
	}

	switch {
	case v.CanClaim:
		pterm.Success.Println("You survived. Claim your prize.")
	case v.SelfEliminated:
		pterm.Warning.Println("You have been eliminated.")
	case v.SelfIsAsker && v.Phase == game.PhaseQuestion:
		pterm.Info.Println("Your turn to ask.")
	case v.Phase == game.PhaseAnswer && !v.SelfAnswered:
		pterm.Info.Println("Waiting for your answer.")
	}
}
