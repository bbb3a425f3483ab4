// Package report aggregates simulation results across replications.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/freeeve/banditlab/internal/sim"
	"github.com/freeeve/banditlab/pkg/bandit"
)

// Summary holds per-trial averages across replications. Index t covers every
// replication that reached trial t, so early-stopped replications drop out.
type Summary struct {
	Arms                 int         `json:"arms"`
	Counts               []int       `json:"counts"`
	MeanReward           []float64   `json:"mean_reward"`
	MeanCumulativeReward []float64   `json:"mean_cumulative_reward"`
	SelectionRate        [][]float64 `json:"selection_rate"`
	CumulativeSelections [][]float64 `json:"cumulative_selections"`
}

// Horizon is the longest replication observed.
func (s *Summary) Horizon() int { return len(s.Counts) }

// FinalCumulativeReward is the mean cumulative reward at the last trial, or 0
// for an empty summary.
func (s *Summary) FinalCumulativeReward() float64 {
	if len(s.MeanCumulativeReward) == 0 {
		return 0
	}
	return s.MeanCumulativeReward[len(s.MeanCumulativeReward)-1]
}

// Summarize averages res by trial index.
func Summarize(res *sim.Result, nArms int) (*Summary, error) {
	if nArms < 1 {
		return nil, bandit.InvalidConfig("report", "arms", fmt.Sprintf("must be positive, got %d", nArms))
	}
	horizon := 0
	for _, t := range res.Trials {
		if t+1 > horizon {
			horizon = t + 1
		}
	}

	s := &Summary{
		Arms:                 nArms,
		Counts:               make([]int, horizon),
		MeanReward:           make([]float64, horizon),
		MeanCumulativeReward: make([]float64, horizon),
		SelectionRate:        make([][]float64, horizon),
		CumulativeSelections: make([][]float64, horizon),
	}
	for t := 0; t < horizon; t++ {
		s.SelectionRate[t] = make([]float64, nArms)
		s.CumulativeSelections[t] = make([]float64, nArms)
	}

	running := make([]float64, nArms)
	for i := 0; i < res.Len(); i++ {
		t, arm := res.Trials[i], res.ChosenArms[i]
		if arm < 0 || arm >= nArms {
			return nil, fmt.Errorf("record %d: arm %d outside [0,%d)", i, arm, nArms)
		}
		if t == 0 {
			clear(running)
		}
		running[arm]++

		s.Counts[t]++
		s.MeanReward[t] += res.Rewards[i]
		s.MeanCumulativeReward[t] += res.CumulativeRewards[i]
		s.SelectionRate[t][arm]++
		for a := range running {
			s.CumulativeSelections[t][a] += running[a]
		}
	}

	for t, n := range s.Counts {
		if n == 0 {
			continue
		}
		k := float64(n)
		s.MeanReward[t] /= k
		s.MeanCumulativeReward[t] /= k
		for a := 0; a < nArms; a++ {
			s.SelectionRate[t][a] /= k
			s.CumulativeSelections[t][a] /= k
		}
	}
	return s, nil
}

// Accuracy is the per-trial fraction of replications that chose bestArm.
func Accuracy(s *Summary, bestArm int) ([]float64, error) {
	if bestArm < 0 || bestArm >= s.Arms {
		return nil, fmt.Errorf("best arm %d outside [0,%d)", bestArm, s.Arms)
	}
	out := make([]float64, len(s.SelectionRate))
	for t, rates := range s.SelectionRate {
		out[t] = rates[bestArm]
	}
	return out, nil
}

// BandPoint is one step of an expanding confidence band.
type BandPoint struct {
	Trial int     `json:"trial"`
	Mean  float64 `json:"mean"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// ArmBand is the confidence band for one arm's reward.
type ArmBand struct {
	Arm    int         `json:"arm"`
	Points []BandPoint `json:"points"`
}

// Final returns the last band point and whether there is one.
func (b ArmBand) Final() (BandPoint, bool) {
	if len(b.Points) == 0 {
		return BandPoint{}, false
	}
	return b.Points[len(b.Points)-1], true
}

// ArmConfidence builds, per arm, the series of average rewards at each trial
// where the arm was chosen, then an expanding mean with a two-sided
// Student-t interval at the given level. Points start once two observations
// are available.
func ArmConfidence(res *sim.Result, nArms int, level float64) ([]ArmBand, error) {
	if !(level > 0 && level < 1) {
		return nil, bandit.InvalidConfig("report", "level", fmt.Sprintf("must be in (0,1), got %v", level))
	}
	s, err := armRewardByTrial(res, nArms)
	if err != nil {
		return nil, err
	}

	bands := make([]ArmBand, nArms)
	for arm := range bands {
		bands[arm].Arm = arm
		series := s[arm]
		values := make([]float64, 0, len(series))
		for i, obs := range series {
			values = append(values, obs.reward)
			if i == 0 {
				continue
			}
			mean, std := stat.MeanStdDev(values, nil)
			t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(i)}.Quantile(1 - (1-level)/2)
			half := t * std / math.Sqrt(float64(i+1))
			bands[arm].Points = append(bands[arm].Points, BandPoint{
				Trial: obs.trial,
				Mean:  mean,
				Lower: mean - half,
				Upper: mean + half,
			})
		}
	}
	return bands, nil
}

type trialMean struct {
	trial  int
	reward float64
}

// armRewardByTrial groups rewards by arm and trial index and averages each group.
func armRewardByTrial(res *sim.Result, nArms int) ([][]trialMean, error) {
	if nArms < 1 {
		return nil, bandit.InvalidConfig("report", "arms", fmt.Sprintf("must be positive, got %d", nArms))
	}
	sums := make([]map[int]float64, nArms)
	counts := make([]map[int]int, nArms)
	maxTrial := -1
	for a := range sums {
		sums[a] = make(map[int]float64)
		counts[a] = make(map[int]int)
	}
	for i := 0; i < res.Len(); i++ {
		arm, t := res.ChosenArms[i], res.Trials[i]
		if arm < 0 || arm >= nArms {
			return nil, fmt.Errorf("record %d: arm %d outside [0,%d)", i, arm, nArms)
		}
		sums[arm][t] += res.Rewards[i]
		counts[arm][t]++
		if t > maxTrial {
			maxTrial = t
		}
	}

	out := make([][]trialMean, nArms)
	for a := range out {
		for t := 0; t <= maxTrial; t++ {
			if n := counts[a][t]; n > 0 {
				out[a] = append(out[a], trialMean{trial: t, reward: sums[a][t] / float64(n)})
			}
		}
	}
	return out, nil
}

var csvHeader = []string{"replication", "trial", "arm", "reward", "cumulative_reward", "alpha", "beta"}

// WriteCSV writes one row per trial. Alpha and beta vectors are joined with ';'.
func WriteCSV(w io.Writer, res *sim.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i := 0; i < res.Len(); i++ {
		row := []string{
			strconv.Itoa(res.Replications[i]),
			strconv.Itoa(res.Trials[i]),
			strconv.Itoa(res.ChosenArms[i]),
			formatFloat(res.Rewards[i]),
			formatFloat(res.CumulativeRewards[i]),
			joinFloats(res.Alphas[i]),
			joinFloats(res.Betas[i]),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func joinFloats(vs []float64) string {
	buf := make([]byte, 0, len(vs)*4)
	for i, v := range vs {
		if i > 0 {
			buf = append(buf, ';')
		}
		buf = strconv.AppendFloat(buf, v, 'g', -1, 64)
	}
	return string(buf)
}
