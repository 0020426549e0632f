// Command client is a manual-testing CLI that connects to cmd/server and
// places or cancels orders, printing Event reports as they stream back.
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"strings"
	"time"

	"lobengine/internal/order"
	"lobengine/internal/transport"
)

func main() {
	serverAddr := flag.String("server", "127.0.0.1:7777", "address of the matching engine server")
	action := flag.String("action", "place", "action to perform: place, cancel")

	clientID := flag.String("client-id", "", "client ID, used for self-trade prevention grouping")
	sideStr := flag.String("side", "buy", "order side: buy or sell")
	typeStr := flag.String("type", "limit", "order type: limit or market")
	tifStr := flag.String("tif", "gtc", "time in force: gtc, ioc, or fok")
	postOnly := flag.Bool("post-only", false, "reject at admission rather than cross the book")
	stp := flag.Bool("stp", false, "skip resting orders sharing client-id instead of matching them")
	price := flag.Float64("price", 0, "limit price")
	qty := flag.Float64("qty", 1, "quantity")
	orderID := flag.String("order-id", "", "order ID (required for cancel; auto-generated for place if empty)")

	flag.Parse()

	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("failed to connect to %s: %v", *serverAddr, err)
	}
	defer conn.Close()
	fmt.Printf("connected to %s\n", *serverAddr)

	go readEvents(conn)

	switch strings.ToLower(*action) {
	case "place":
		id := *orderID
		if id == "" {
			id = fmt.Sprintf("cli-%d", time.Now().UnixNano())
		}
		req := transport.NewOrderRequest{
			Side:        parseSide(*sideStr),
			Type:        parseType(*typeStr),
			TimeInForce: parseTIF(*tifStr),
			Flags:       parseFlags(*postOnly, *stp),
			Price:       *price,
			Quantity:    *qty,
			Timestamp:   float64(time.Now().UnixNano()) / 1e9,
			OrderID:     id,
			ClientID:    *clientID,
		}
		if _, err := conn.Write(transport.EncodeNewOrder(req)); err != nil {
			log.Fatalf("failed to send order: %v", err)
		}
		fmt.Printf("-> sent %s %s %s %s qty=%v price=%v\n", req.TimeInForce, req.Side, req.Type, id, req.Quantity, req.Price)

	case "cancel":
		if *orderID == "" {
			log.Fatal("-order-id is required for cancel")
		}
		if _, err := conn.Write(transport.EncodeCancelOrder(transport.CancelOrderRequest{OrderID: *orderID})); err != nil {
			log.Fatalf("failed to send cancel: %v", err)
		}
		fmt.Printf("-> sent cancel for %s\n", *orderID)

	default:
		log.Fatalf("unknown action %q", *action)
	}

	fmt.Println("listening for reports... (Ctrl+C to exit)")
	select {}
}

func parseSide(s string) order.Side {
	if strings.EqualFold(s, "sell") {
		return order.Sell
	}
	return order.Buy
}

func parseType(s string) order.Type {
	if strings.EqualFold(s, "market") {
		return order.Market
	}
	return order.Limit
}

func parseTIF(s string) order.TimeInForce {
	switch strings.ToLower(s) {
	case "ioc":
		return order.IOC
	case "fok":
		return order.FOK
	default:
		return order.GTC
	}
}

func parseFlags(postOnly, stp bool) order.Flag {
	var f order.Flag
	if postOnly {
		f |= order.PostOnly
	}
	if stp {
		f |= order.STP
	}
	return f
}

// readEvents continuously reads and prints Event reports from the server
// until the connection closes. Assumes one frame per Read, matching how
// cmd/server writes one EncodeEvent result per conn.Write.
func readEvents(conn net.Conn) {
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			fmt.Println("connection closed:", err)
			os.Exit(0)
		}
		e, err := transport.DecodeEvent(buf[:n])
		if err != nil {
			log.Printf("error decoding event report: %v", err)
			continue
		}
		fmt.Printf("[%s] order=%s matched=%s reason=%s price=%s qty=%s\n",
			e.Type, e.OrderID, e.MatchedOrderID, e.Reason, e.Price, e.Quantity)
	}
}
