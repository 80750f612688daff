// Command pickup-probe replays an AMI capture and shows which ringing
// channel a pickup request would take, without touching a live PBX.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/sweeney/asterisk-pickup/internal/ami"
	"github.com/sweeney/asterisk-pickup/internal/channel"
	"github.com/sweeney/asterisk-pickup/internal/logging"
	"github.com/sweeney/asterisk-pickup/internal/pickup"
	"github.com/sweeney/asterisk-pickup/internal/tracker"
)

func main() {
	capture := flag.String("capture", "", "AMI capture file to replay")
	requester := flag.String("channel", "", "Name or unique id of the requesting channel")
	targets := flag.String("targets", "", "Pickup request, e.g. 100@default&sales@PICKUPMARK")
	pick := flag.Bool("pick", false, "Run the full pickup against the replayed channels and print the report")
	list := flag.Bool("list", false, "List the replayed channels and exit")
	logLevel := flag.String("log-level", "warn", "Log level")
	flag.Parse()

	if *capture == "" {
		fmt.Fprintln(os.Stderr, "error: -capture is required")
		flag.Usage()
		os.Exit(1)
	}

	data, err := os.ReadFile(*capture)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	p := &probe{
		reg:    channel.NewRegistry(),
		out:    os.Stdout,
		logger: logging.New(os.Stderr, *logLevel, "text"),
	}
	p.replay(data)

	if *list {
		p.list()
		return
	}
	if *requester == "" {
		fmt.Fprintln(os.Stderr, "error: -channel is required")
		os.Exit(1)
	}

	if *pick {
		err = p.pickup(*requester, *targets)
	} else {
		err = p.dryRun(*requester, *targets)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type probe struct {
	reg    *channel.Registry
	out    io.Writer
	logger *slog.Logger
}

func (p *probe) replay(data []byte) {
	tr := tracker.New(p.reg)
	for _, evt := range ami.ParseBytes(data) {
		tr.Process(evt)
	}
}

func (p *probe) list() {
	for _, c := range p.reg.Channels() {
		a := c.Attrs()
		fmt.Fprintf(p.out, "%-32s %-16s state=%-8s pbx=%-5t exten=%s macro=%s dialcontext=%s mark=%s\n",
			c.Name(), c.ID(), a.State, a.InPBX, a.Exten, a.MacroExten, a.DialContext, a.Vars[pickup.MarkVariable])
	}
}

func (p *probe) requester(name string) (*channel.Channel, error) {
	if c := p.reg.GetByName(name); c != nil {
		return c, nil
	}
	if c := p.reg.Get(name); c != nil {
		return c, nil
	}
	return nil, fmt.Errorf("channel %s not in capture", name)
}

// dryRun reports the candidate for each target without merging.
func (p *probe) dryRun(name, request string) error {
	req, err := p.requester(name)
	if err != nil {
		return err
	}
	if request == "" {
		fmt.Fprintln(p.out, "empty request: group pickup")
		return nil
	}
	for _, t := range pickup.ParseTargets(request, req.Attrs().Context) {
		l, ok := pickup.FindTarget(p.reg, t, req)
		if !ok {
			fmt.Fprintf(p.out, "%s (%s): no target\n", t, t.Kind)
			continue
		}
		fmt.Fprintf(p.out, "%s (%s): %s\n", t, t.Kind, l.Name())
		l.Release()
	}
	return nil
}

// pickup runs the request on the local engine and prints the report.
func (p *probe) pickup(name, request string) error {
	req, err := p.requester(name)
	if err != nil {
		return err
	}
	d := pickup.NewDriver(p.reg, channel.NewLocal(p.reg), pickup.WithLogger(p.logger))
	report, err := d.Pickup(context.Background(), req, request)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
