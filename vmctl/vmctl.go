package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/memoria/models"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/utils/config"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/utils/log"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/utils/web/client"
)

// Se ejecuta desde la raíz del repo, con memoria levantada
// > go run ./vmctl process 1 stack
// > go run ./vmctl write 1 0x4747fff0 hola
// > go run ./vmctl read 1 0x4747fff0 4
// > go run ./vmctl mmap 1 0x10000000 4096 archivo.txt
// > go run ./vmctl stats

const (
	ConfigPath = "vmctl/configs/vmctl.json"
	LogPath    = "./logs/vmctl.log"
)

type Config struct {
	IpMemory   string `json:"ip_memory"`
	PortMemory int    `json:"port_memory"`
	LogLevel   string `json:"log_level"`
}

func main() {
	var vmctlConfig *Config
	config.InitConfig(ConfigPath, &vmctlConfig)
	log.InitLogger(LogPath, vmctlConfig.LogLevel)

	memoria := memoriaClient{ip: vmctlConfig.IpMemory, port: vmctlConfig.PortMemory}
	if err := run(memoria, os.Args[1:], os.Stdout); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

// memoriaClient habla con la API HTTP de memoria como lo hace el kernel.
type memoriaClient struct {
	ip   string
	port int
}

// reply junta las respuestas posibles de memoria; los campos no se pisan entre sí.
type reply struct {
	models.ReadResponse
	models.MmapResponse
	models.ErrorResponse
}

func (m memoriaClient) post(query string, body any) (reply, error) {
	var resp reply
	if err := client.PostJSON(m.port, m.ip, query, body, &resp); err != nil {
		if resp.Error != "" {
			return resp, fmt.Errorf("%s: %s (errno: %s)", query, resp.Error, resp.Errno)
		}
		return resp, fmt.Errorf("%s: %w", query, err)
	}
	return resp, nil
}

// raw hace el request y devuelve el body tal cual, para stats y dump.
func (m memoriaClient) raw(method, query string, body []byte) ([]byte, error) {
	var bodies [][]byte
	if body != nil {
		bodies = append(bodies, body)
	}
	resp, err := client.DoRequest(m.port, m.ip, method, query, bodies...)
	if resp == nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", query, err, data)
	}
	return data, readErr
}

func run(m memoriaClient, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("falta el comando")
	}
	command, args := args[0], args[1:]

	switch command {
	case "process":
		if err := need(command, args, 1); err != nil {
			return err
		}
		pid, err := parsePID(args[0])
		if err != nil {
			return err
		}
		_, err = m.post("vm/process", models.CreateProcessRequest{PID: pid, SetupStack: len(args) > 1 && args[1] == "stack"})
		return err

	case "write":
		if err := need(command, args, 3); err != nil {
			return err
		}
		pid, address, err := parsePIDAndAddress(args)
		if err != nil {
			return err
		}
		_, err = m.post("vm/write", models.WriteRequest{PID: pid, Address: address, Data: []byte(args[2])})
		return err

	case "read":
		if err := need(command, args, 3); err != nil {
			return err
		}
		pid, address, err := parsePIDAndAddress(args)
		if err != nil {
			return err
		}
		size, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("tamaño inválido %q: %w", args[2], err)
		}
		resp, err := m.post("vm/read", models.ReadRequest{PID: pid, Address: address, Size: size})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\n", resp.Data)
		return nil

	case "fault":
		if err := need(command, args, 2); err != nil {
			return err
		}
		pid, address, err := parsePIDAndAddress(args)
		if err != nil {
			return err
		}
		write := len(args) > 2 && args[2] == "write"
		_, err = m.post("vm/fault", models.FaultRequest{PID: pid, Address: address, User: true, Write: write, NotPresent: true})
		return err

	case "mmap":
		if err := need(command, args, 4); err != nil {
			return err
		}
		pid, address, err := parsePIDAndAddress(args)
		if err != nil {
			return err
		}
		length, err := strconv.ParseUint(args[2], 0, 64)
		if err != nil {
			return fmt.Errorf("longitud inválida %q: %w", args[2], err)
		}
		writable := !(len(args) > 4 && args[4] == "ro")
		resp, err := m.post("vm/mmap", models.MmapRequest{PID: pid, Address: address, Length: length, Writable: writable, Path: args[3]})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%#x\n", resp.Address)
		return nil

	case "munmap":
		if err := need(command, args, 2); err != nil {
			return err
		}
		pid, address, err := parsePIDAndAddress(args)
		if err != nil {
			return err
		}
		_, err = m.post("vm/munmap", models.MunmapRequest{PID: pid, Address: address})
		return err

	case "fork":
		if err := need(command, args, 2); err != nil {
			return err
		}
		parent, err := parsePID(args[0])
		if err != nil {
			return err
		}
		child, err := parsePID(args[1])
		if err != nil {
			return err
		}
		_, err = m.post("vm/fork", models.ForkRequest{ParentPID: parent, ChildPID: child})
		return err

	case "exit":
		if err := need(command, args, 1); err != nil {
			return err
		}
		pid, err := parsePID(args[0])
		if err != nil {
			return err
		}
		_, err = m.post("vm/exit", models.PIDRequest{PID: pid})
		return err

	case "dump":
		if err := need(command, args, 1); err != nil {
			return err
		}
		pid, err := parsePID(args[0])
		if err != nil {
			return err
		}
		body, _ := json.Marshal(models.PIDRequest{PID: pid})
		data, err := m.raw(http.MethodPost, "vm/dump", body)
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err

	case "stats":
		data, err := m.raw(http.MethodGet, "vm/stats", nil)
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	}
	return fmt.Errorf("comando desconocido: %s", command)
}

func need(command string, args []string, n int) error {
	if len(args) < n {
		return fmt.Errorf("%s necesita %d argumentos, recibió %d", command, n, len(args))
	}
	return nil
}

func parsePID(s string) (uint, error) {
	pid, err := strconv.ParseUint(s, 10, 0)
	if err != nil {
		return 0, fmt.Errorf("pid inválido %q: %w", s, err)
	}
	return uint(pid), nil
}

func parsePIDAndAddress(args []string) (uint, uint64, error) {
	pid, err := parsePID(args[0])
	if err != nil {
		return 0, 0, err
	}
	address, err := strconv.ParseUint(args[1], 0, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("dirección inválida %q: %w", args[1], err)
	}
	return pid, address, nil
}
