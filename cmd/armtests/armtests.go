package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/armlab/cr5-teleop/pkg/arm"
)

// Interactive dashboard console: type raw commands like "GetPose()" and
// see the reply body.
func main() {
	host := flag.String("host", "192.168.1.6", "arm controller host")
	flag.Parse()

	addr := fmt.Sprintf("%s:%d", *host, arm.DashboardPort)
	fmt.Println("Arm dashboard test program, connecting to", addr)
	c, err := arm.New(addr)
	if err != nil {
		panic(err)
	}
	defer c.Close()

	fmt.Println("Connected. Type dashboard commands, e.g. GetPose()")
	sc := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !sc.Scan() {
			return
		}
		cmd := strings.TrimSpace(sc.Text())
		if cmd == "" {
			continue
		}
		body, err := c.Raw(cmd)
		if err != nil {
			fmt.Println("Error:", err)
			continue
		}
		fmt.Printf("OK {%s}\n", body)
	}
}
